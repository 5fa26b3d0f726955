package engine

import (
	"context"
	"sync/atomic"
)

// Token is one admission permit. It must be released exactly once.
type Token struct {
	owner    *AdmissionController
	released atomic.Bool
}

// AdmissionController bounds the number of transfers in flight. Each
// granted Token occupies one slot of a buffered channel.
type AdmissionController struct {
	slots chan struct{}
	held  atomic.Int64
	peak  atomic.Int64
}

// NewAdmissionController creates a controller with maxOutstanding
// slots. It panics if maxOutstanding is not positive.
func NewAdmissionController(maxOutstanding int) *AdmissionController {
	if maxOutstanding <= 0 {
		panic("engine: maxOutstanding must be positive")
	}
	return &AdmissionController{slots: make(chan struct{}, maxOutstanding)}
}

// Acquire blocks until a slot is free or ctx is done.
func (a *AdmissionController) Acquire(ctx context.Context) (*Token, error) {
	// A done context wins over a free slot.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case a.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		<-a.slots
		return nil, err
	}

	n := a.held.Add(1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &Token{owner: a}, nil
}

// Release returns the slot held by t. It never blocks and panics when
// the release is not balanced by a prior Acquire.
func (a *AdmissionController) Release(t *Token) {
	if t == nil {
		panic("engine: release of nil admission token")
	}
	if t.owner != a {
		panic("engine: release of a token granted by another controller")
	}
	if !t.released.CompareAndSwap(false, true) {
		panic("engine: admission token released twice")
	}

	a.held.Add(-1)
	select {
	case <-a.slots:
	default:
		panic("engine: release without a matching acquire")
	}
}

// Outstanding returns the number of tokens currently held.
func (a *AdmissionController) Outstanding() int {
	return int(a.held.Load())
}

// Capacity returns maxOutstanding.
func (a *AdmissionController) Capacity() int {
	return cap(a.slots)
}

// Peak returns the highest number of tokens held at once so far.
func (a *AdmissionController) Peak() int {
	return int(a.peak.Load())
}
