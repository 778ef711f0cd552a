package clock

import "time"

// Clock abstracts time for the session ledger so tests can pin it.
// All values are UTC, truncated to second precision to match what the
// store persists.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock frozen at t, for tests.
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC().Truncate(time.Second)}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
