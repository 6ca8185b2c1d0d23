package domain

import "time"

// Quote is a two-sided price observation from a provider.
type Quote struct {
	Pair        Pair
	Bid         float64
	Ask         float64
	TimestampMs int64
	Provider    string
}

// AgeMs returns the quote's age relative to now.
func (q Quote) AgeMs(now time.Time) int64 {
	return now.UnixMilli() - q.TimestampMs
}

// Fresh reports whether the quote's age is within maxAgeMs.
func (q Quote) Fresh(now time.Time, maxAgeMs int64) bool {
	return q.AgeMs(now) <= maxAgeMs
}

// SpreadPips returns the bid/ask spread expressed in pips for the pair.
func (q Quote) SpreadPips(p Pair) float64 {
	pip := p.PipSize()
	if pip == 0 {
		return 0
	}
	return (q.Ask - q.Bid) / pip
}

// Mid returns the midpoint price.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
