package timeguard

import "time"

// Clock abstracts the two time sources the detector compares. Separating
// them keeps tamper checks testable: tests can move the wall clock while
// holding the monotonic reading steady, which is exactly what clock
// manipulation looks like from inside a process.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Monotonic returns a reading that advances steadily regardless of
	// wall-clock adjustments. Only differences between readings matter.
	Monotonic() time.Duration
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock backed by the OS. The monotonic reading
// is the time elapsed since the clock was created, measured on the runtime
// monotonic clock.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() time.Time { return time.Now() }

func (c *systemClock) Monotonic() time.Duration { return time.Since(c.start) }
