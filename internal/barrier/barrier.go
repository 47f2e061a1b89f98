// Package barrier implements the soft round barrier vehicles use to advance
// in near-lockstep. Each participant owns one slot and publishes the round
// it has reached; a participant waiting for round r proceeds as soon as
// every slot holds r or more. Slowest participants hold everyone else back
// by at most one round, but nobody waits for an exact match.
package barrier

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/crossing/internal/errors"
)

// Departed is the round a slot holds once its participant has left.
const Departed = math.MaxInt64

// Barrier holds one round counter per participant. Each slot has a single
// writer; readers need no lock.
type Barrier struct {
	rounds []atomic.Int64

	mu      sync.Mutex
	changed chan struct{}
}

// New creates a barrier for n participants, all at round 0.
func New(n int) *Barrier {
	return &Barrier{
		rounds:  make([]atomic.Int64, n),
		changed: make(chan struct{}),
	}
}

// Size returns the number of slots.
func (b *Barrier) Size() int {
	return len(b.rounds)
}

// Arrive publishes that the participant in slot has reached round. Rounds
// never move backwards.
func (b *Barrier) Arrive(slot int, round int64) {
	for {
		cur := b.rounds[slot].Load()
		if round <= cur {
			return
		}
		if b.rounds[slot].CompareAndSwap(cur, round) {
			break
		}
	}
	b.notify()
}

// Leave parks slot at Departed so it never holds back the others.
func (b *Barrier) Leave(slot int) {
	b.rounds[slot].Store(Departed)
	b.notify()
}

// notify wakes every waiter by closing the current channel and installing
// a fresh one.
func (b *Barrier) notify() {
	b.mu.Lock()
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// Wait blocks until every slot has reached round or ctx is done.
func (b *Barrier) Wait(ctx context.Context, round int64) error {
	for {
		b.mu.Lock()
		ch := b.changed
		b.mu.Unlock()

		if b.Reached(round) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return errors.Join(errors.ErrCanceled,
				fmt.Errorf("waiting for round %d: %w", round, ctx.Err()))
		}
	}
}

// Reached reports whether every slot holds round or more.
func (b *Barrier) Reached(round int64) bool {
	return b.Min() >= round
}

// Min returns the lowest round across slots. An empty barrier reports
// Departed.
func (b *Barrier) Min() int64 {
	low := int64(Departed)
	for i := range b.rounds {
		if r := b.rounds[i].Load(); r < low {
			low = r
		}
	}
	return low
}

// Round returns the round held by slot.
func (b *Barrier) Round(slot int) int64 {
	return b.rounds[slot].Load()
}
