package billing

import (
	"math"
	"time"
)

// ProrationOutcomeKind distinguishes the three proration branches of
// spec §4.6.
type ProrationOutcomeKind string

const (
	ProrationDowngrade ProrationOutcomeKind = "downgrade"
	ProrationTooSmall  ProrationOutcomeKind = "too_small"
	ProrationRequired  ProrationOutcomeKind = "required"
)

// prorationTooSmallThreshold is a business constant, not
// currency-aware; keep as a literal per spec §9.
const prorationTooSmallThreshold = 30

// ProrationResult is the outcome of a mid-cycle subscription product
// change.
type ProrationResult struct {
	Kind   ProrationOutcomeKind
	Amount int64 // minor units; only meaningful for ProrationRequired
}

// ProrationCalculator computes the one-time charge created when a
// subscription's product changes mid-cycle.
type ProrationCalculator struct{}

func NewProrationCalculator() *ProrationCalculator {
	return &ProrationCalculator{}
}

// Calculate implements spec §4.6's formula:
// proration = floor((seconds_remaining / seconds_in_interval) * (new_price - current_price)).
func (pc *ProrationCalculator) Calculate(intervalStart, intervalEnd, now time.Time, currentPriceAmount, newPriceAmount int64) ProrationResult {
	secondsInInterval := intervalEnd.Sub(intervalStart).Seconds()
	secondsRemaining := intervalEnd.Sub(now).Seconds()
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	if newPriceAmount < currentPriceAmount {
		return ProrationResult{Kind: ProrationDowngrade}
	}
	if secondsInInterval <= 0 {
		return ProrationResult{Kind: ProrationTooSmall}
	}

	fraction := secondsRemaining / secondsInInterval
	raw := fraction * float64(newPriceAmount-currentPriceAmount)
	amount := int64(math.Floor(raw))

	if amount < prorationTooSmallThreshold {
		return ProrationResult{Kind: ProrationTooSmall}
	}
	return ProrationResult{Kind: ProrationRequired, Amount: amount}
}
