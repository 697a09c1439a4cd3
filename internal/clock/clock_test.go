package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEpochNow_SystemClock(t *testing.T) {
	before := time.Now().Unix()
	now := EpochNow(NewSystemClock())
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, now, before)
	assert.LessOrEqual(t, now, after)
}

func TestDaysAgo(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(base)

	tests := []struct {
		days int
		want int64
	}{
		{days: 0, want: base.Unix()},
		{days: 1, want: base.Unix() - 86400},
		{days: 30, want: base.Unix() - 30*86400},
		{days: -3, want: base.Unix() + 3*86400},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysAgo(c, tt.days), "days=%d", tt.days)
	}
}

func TestFakeClock_Advance(t *testing.T) {
	c := NewFakeClock(time.Unix(1_700_000_000, 0))
	c.Advance(90 * time.Second)
	assert.Equal(t, int64(1_700_000_090), EpochNow(c))
}
