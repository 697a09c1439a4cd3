package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

const secondsPerDay = 24 * 3600

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// EpochNow returns the clock's current time in unix seconds.
func EpochNow(c Clock) int64 {
	return c.Now().Unix()
}

// DaysAgo returns the unix seconds timestamp days before now. Negative days
// point into the future.
func DaysAgo(c Clock, days int) int64 {
	return EpochNow(c) - int64(days)*secondsPerDay
}
