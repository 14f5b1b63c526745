package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/logger"
)

// waitForShutdown blocks until SIGINT/SIGTERM, letting the reconciler's
// background loop keep running in the meantime.
func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutdown signal received", zap.String("signal", s.String()))
}
