package schedule

import (
	"fmt"
	"time"
)

type cadenceKind int

const (
	kindEveryMinutes cadenceKind = iota
	kindEveryHours
	kindDailyAt
)

// Cadence is a recurrence rule evaluated at minute resolution. The three
// shapes cover every schedule this system runs; there is no free-form cron
// parsing. Construct cadences with EveryMinutes, EveryHours or DailyAt:
// an invalid rule is rejected at construction time, so evaluation never
// fails at runtime.
type Cadence struct {
	kind   cadenceKind
	n      int // interval for every-N kinds
	hour   int // fire hour for daily
	minute int // fire minute for daily
}

// EveryMinutes fires at every minute boundary divisible by n
// (n=15 fires at :00, :15, :30, :45). n must divide the hour evenly.
func EveryMinutes(n int) (Cadence, error) {
	if n <= 0 || n >= 60 || 60%n != 0 {
		return Cadence{}, fmt.Errorf("invalid minute interval %d: must divide 60", n)
	}
	return Cadence{kind: kindEveryMinutes, n: n}, nil
}

// EveryHours fires at minute 0 of every hour divisible by n.
// n must divide the day evenly.
func EveryHours(n int) (Cadence, error) {
	if n <= 0 || n > 24 || 24%n != 0 {
		return Cadence{}, fmt.Errorf("invalid hour interval %d: must divide 24", n)
	}
	return Cadence{kind: kindEveryHours, n: n}, nil
}

// DailyAt fires once a day at the given wall-clock hour and minute.
func DailyAt(hour, minute int) (Cadence, error) {
	if hour < 0 || hour > 23 {
		return Cadence{}, fmt.Errorf("invalid hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return Cadence{}, fmt.Errorf("invalid minute %d", minute)
	}
	return Cadence{kind: kindDailyAt, hour: hour, minute: minute}, nil
}

// mustCadence panics on a bad rule. Only used for the fixed task table,
// where a bad rule is a programming error caught by the table tests.
func mustCadence(c Cadence, err error) Cadence {
	if err != nil {
		panic(err)
	}
	return c
}

// Matches reports whether the cadence fires at t. Seconds and finer are
// ignored: a cadence matches the whole minute it fires in.
func (c Cadence) Matches(t time.Time) bool {
	switch c.kind {
	case kindEveryMinutes:
		return t.Minute()%c.n == 0
	case kindEveryHours:
		return t.Minute() == 0 && t.Hour()%c.n == 0
	case kindDailyAt:
		return t.Hour() == c.hour && t.Minute() == c.minute
	}
	return false
}

// Next returns the first firing time strictly after t.
func (c Cadence) Next(t time.Time) time.Time {
	// Step to the next minute boundary and walk forward. The longest
	// gap between firings is 24h, so the walk is bounded.
	cur := t.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i <= 24*60; i++ {
		if c.Matches(cur) {
			return cur
		}
		cur = cur.Add(time.Minute)
	}
	return cur
}

// Interval returns the nominal gap between consecutive firings.
func (c Cadence) Interval() time.Duration {
	switch c.kind {
	case kindEveryMinutes:
		return time.Duration(c.n) * time.Minute
	case kindEveryHours:
		return time.Duration(c.n) * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (c Cadence) String() string {
	switch c.kind {
	case kindEveryMinutes:
		return fmt.Sprintf("every %d minutes", c.n)
	case kindEveryHours:
		return fmt.Sprintf("every %d hours", c.n)
	default:
		return fmt.Sprintf("daily at %02d:%02d", c.hour, c.minute)
	}
}
