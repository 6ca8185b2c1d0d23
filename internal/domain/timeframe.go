package domain

import "fmt"

// Timeframe is a candle granularity.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// periodSeconds maps each timeframe to its canonical period.
var periodSeconds = map[Timeframe]int64{
	M1: 60, M5: 300, M15: 900, M30: 1800, H1: 3600, H4: 14400, D1: 86400,
}

// PeriodSeconds returns the canonical candle period, or 0 for an unknown
// timeframe.
func (tf Timeframe) PeriodSeconds() int64 { return periodSeconds[tf] }

// Valid reports whether tf is one of the recognized timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := periodSeconds[tf]
	return ok
}

// ParseTimeframe validates a raw timeframe string.
func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(raw)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", raw)
	}
	return tf, nil
}
