package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestEveryMinutesMatches(t *testing.T) {
	c, err := EveryMinutes(15)
	require.NoError(t, err)

	for _, minute := range []int{0, 15, 30, 45} {
		assert.True(t, c.Matches(at(9, minute)), "should fire at minute %d", minute)
	}
	for _, minute := range []int{1, 14, 16, 29, 44, 59} {
		assert.False(t, c.Matches(at(9, minute)), "should not fire at minute %d", minute)
	}

	// Seconds within the firing minute do not matter
	assert.True(t, c.Matches(at(9, 15).Add(42*time.Second)))
}

func TestEveryHoursMatches(t *testing.T) {
	c, err := EveryHours(6)
	require.NoError(t, err)

	for _, hour := range []int{0, 6, 12, 18} {
		assert.True(t, c.Matches(at(hour, 0)))
	}
	assert.False(t, c.Matches(at(6, 1)), "only fires at minute 0")
	assert.False(t, c.Matches(at(5, 0)))
	assert.False(t, c.Matches(at(7, 0)))
}

func TestDailyAtMatches(t *testing.T) {
	c, err := DailyAt(2, 0)
	require.NoError(t, err)

	assert.True(t, c.Matches(at(2, 0)))
	assert.False(t, c.Matches(at(2, 1)))
	assert.False(t, c.Matches(at(3, 0)))
	assert.False(t, c.Matches(at(14, 0)))
}

func TestCadenceConstructorValidation(t *testing.T) {
	for _, n := range []int{0, -5, 7, 60, 61} {
		_, err := EveryMinutes(n)
		assert.Error(t, err, "minute interval %d", n)
	}
	for _, n := range []int{0, -1, 5, 7, 25} {
		_, err := EveryHours(n)
		assert.Error(t, err, "hour interval %d", n)
	}
	_, err := DailyAt(24, 0)
	assert.Error(t, err)
	_, err = DailyAt(2, 60)
	assert.Error(t, err)
	_, err = DailyAt(-1, 0)
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	every15, err := EveryMinutes(15)
	require.NoError(t, err)
	assert.Equal(t, at(9, 15), every15.Next(at(9, 3)))
	assert.Equal(t, at(9, 30), every15.Next(at(9, 15)), "next is strictly after")

	daily, err := DailyAt(2, 0)
	require.NoError(t, err)
	assert.Equal(t, at(2, 0).AddDate(0, 0, 1), daily.Next(at(2, 0)))
	assert.Equal(t, at(2, 0), daily.Next(at(1, 59)))
}

func TestInterval(t *testing.T) {
	every30, _ := EveryMinutes(30)
	assert.Equal(t, 30*time.Minute, every30.Interval())

	hourly, _ := EveryHours(1)
	assert.Equal(t, time.Hour, hourly.Interval())

	daily, _ := DailyAt(2, 0)
	assert.Equal(t, 24*time.Hour, daily.Interval())
}

func TestString(t *testing.T) {
	every15, _ := EveryMinutes(15)
	assert.Equal(t, "every 15 minutes", every15.String())

	every6h, _ := EveryHours(6)
	assert.Equal(t, "every 6 hours", every6h.String())

	daily, _ := DailyAt(2, 0)
	assert.Equal(t, "daily at 02:00", daily.String())
}
