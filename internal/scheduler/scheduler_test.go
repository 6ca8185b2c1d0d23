package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextUTCHourBoundaryLaterTodayWhenHourHasNotPassed(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	wait := nextUTCHourBoundary(now, 21)
	require.Equal(t, 11*time.Hour, wait)
}

func TestNextUTCHourBoundaryRollsToTomorrowWhenHourPassed(t *testing.T) {
	now := time.Date(2026, 7, 30, 22, 0, 0, 0, time.UTC)
	wait := nextUTCHourBoundary(now, 21)
	require.Equal(t, 23*time.Hour, wait)
}
