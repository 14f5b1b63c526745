// Package supervisor runs named background loops under a shared
// stop-channel/WaitGroup, the pattern the teacher's MetricsScheduler
// used for a single loop, generalized to register several.
package supervisor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/logger"
)

// Task is one supervised unit of work. Run takes no arguments and is
// called once at Start and then once per tick; Stop waits for an
// in-flight Run to return.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func()
}

// Supervisor starts each registered Task on its own ticker goroutine,
// recovers panics out of Run so one misbehaving loop can't take down
// the process, and stops every loop together.
type Supervisor struct {
	tasks    []Task
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func New() *Supervisor {
	return &Supervisor{stopCh: make(chan struct{})}
}

// Register adds a task. Must be called before Start.
func (s *Supervisor) Register(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start runs every registered task once immediately, then on its own
// ticker, mirroring the teacher's run-on-startup-then-tick shape.
func (s *Supervisor) Start() {
	for _, t := range s.tasks {
		t := t
		s.wg.Add(1)
		go s.runLoop(t)
	}
}

func (s *Supervisor) runLoop(t Task) {
	defer s.wg.Done()

	s.runOnce(t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(t)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) runOnce(t Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("supervised task panicked", zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()
	t.Run()
}

// Stop signals every task's loop to exit and waits for them to return.
// Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.stopped = true
		s.mu.Unlock()

		close(s.stopCh)
		s.wg.Wait()
	})
}
