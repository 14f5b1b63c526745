package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProration_Upgrade(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	now := start.Add(15 * 24 * time.Hour)

	pc := NewProrationCalculator()
	result := pc.Calculate(start, end, now, 500, 1000)

	assert.Equal(t, ProrationRequired, result.Kind)
	assert.Greater(t, result.Amount, int64(0))
}

func TestProration_Downgrade(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	now := start.Add(15 * 24 * time.Hour)

	pc := NewProrationCalculator()
	result := pc.Calculate(start, end, now, 1000, 500)

	assert.Equal(t, ProrationDowngrade, result.Kind)
	assert.Zero(t, result.Amount)
}

func TestProration_TooSmallNearCycleEnd(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	now := end.Add(-time.Minute)

	pc := NewProrationCalculator()
	result := pc.Calculate(start, end, now, 500, 1000)

	assert.Equal(t, ProrationTooSmall, result.Kind)
}

func TestProration_ZeroLengthIntervalIsTooSmall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	pc := NewProrationCalculator()
	result := pc.Calculate(now, now, now, 500, 1000)

	assert.Equal(t, ProrationTooSmall, result.Kind)
}

func TestProration_NowPastIntervalEndClampsToZeroRemaining(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	now := end.Add(24 * time.Hour)

	pc := NewProrationCalculator()
	result := pc.Calculate(start, end, now, 500, 1000)

	assert.Equal(t, ProrationTooSmall, result.Kind, "no time remaining means no proration charge, not a negative one")
}
