package clock

import "time"

// Clock abstracts time for deterministic tests of timeout and
// backoff behavior.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock provides the process clock.
func NewSystemClock() Clock { return SystemClock{} }
