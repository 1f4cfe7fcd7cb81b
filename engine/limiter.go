package engine

import "context"

// RunLimiter bounds how many runs execute concurrently across the whole
// process. Runs beyond the cap stay pending until a slot frees; slot
// acquisition respects context cancellation so a queued run can still be
// cancelled or time out while waiting.
type RunLimiter struct {
	max   int
	slots chan struct{}
}

// NewRunLimiter creates a limiter with a maximum number of concurrently
// executing runs. If max == 0, unlimited runs are allowed.
func NewRunLimiter(max int) *RunLimiter {
	l := &RunLimiter{max: max}
	if max > 0 {
		l.slots = make(chan struct{}, max)
	}
	return l
}

// Acquire blocks until a slot is free and returns nil, or returns the
// context error if ctx is done first.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot previously taken by Acquire.
func (l *RunLimiter) Release() {
	if l.slots == nil {
		return
	}

	select {
	case <-l.slots:
	default:
	}
}

// InUse returns the number of slots currently held.
func (l *RunLimiter) InUse() int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}

// Remaining returns how many runs may still start before hitting the limit.
func (l *RunLimiter) Remaining() int {
	if l.slots == nil {
		return -1 // unlimited
	}
	return l.max - len(l.slots)
}
