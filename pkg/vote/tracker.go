package vote

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// Tracker holds the ballots that are currently being submitted, keyed by
// voter and target. Finished ballots are released.
type Tracker struct {
	inflight *xsync.Map[string, *Ballot]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{inflight: xsync.NewMap[string, *Ballot]()}
}

// Submit runs fn unless a submission for key is already in flight, in which
// case it returns ErrInFlight without calling fn. The returned state is
// confirmed when fn succeeds and rejected otherwise.
func (t *Tracker) Submit(ctx context.Context, key string, fn func(ctx context.Context) error) (State, error) {
	b := NewBallot()
	if _, loaded := t.inflight.LoadOrStore(key, b); loaded {
		return StateRejected, ErrInFlight
	}
	defer t.inflight.Delete(key)

	if err := b.Begin(); err != nil {
		return StateRejected, err
	}
	if err := fn(ctx); err != nil {
		b.Reject(err)
		return StateRejected, err
	}
	b.Confirm()
	return StateConfirmed, nil
}

// InFlight reports whether a submission for key is pending.
func (t *Tracker) InFlight(key string) bool {
	_, ok := t.inflight.Load(key)
	return ok
}
