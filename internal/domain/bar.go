package domain

import (
	"fmt"
	"math"
)

// Bar is an immutable OHLCV candle.
type Bar struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Source      string
}

// ValidateSeries checks the invariants a provider response must satisfy:
// strictly increasing timestamps, positive prices, and an interval within
// +/-20% of the timeframe's canonical period.
func ValidateSeries(bars []Bar, tf Timeframe) error {
	if len(bars) == 0 {
		return fmt.Errorf("empty bar series")
	}
	period := tf.PeriodSeconds() * 1000
	for i, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("bar %d: non-positive price", i)
		}
		if b.High < b.Low {
			return fmt.Errorf("bar %d: high < low", i)
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if b.TimestampMs <= prev.TimestampMs {
			return fmt.Errorf("bar %d: timestamps not monotonic", i)
		}
		if period > 0 {
			delta := float64(b.TimestampMs - prev.TimestampMs)
			tolerance := 0.20 * float64(period)
			if math.Abs(delta-float64(period)) > tolerance {
				return fmt.Errorf("bar %d: interval %dms outside tolerance of expected %dms", i, int64(delta), period)
			}
		}
	}
	return nil
}
