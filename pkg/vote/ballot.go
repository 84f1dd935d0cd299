package vote

import (
	"errors"
	"sync"
)

// State is the lifecycle of one vote submission.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateConfirmed  State = "confirmed"
	StateRejected   State = "rejected"
)

var (
	// ErrInFlight is returned when the same voter already has a submission
	// pending for the same target.
	ErrInFlight = errors.New("vote already in flight")
	// ErrConfirmed is returned when a ballot that already succeeded is submitted again.
	ErrConfirmed = errors.New("vote already confirmed")
	// ErrInvalidChoice is returned for a ballot that is neither yes nor no.
	ErrInvalidChoice = errors.New("choice must be yes or no")
)

// Ballot tracks one voter's submission on one target.
//
//	idle ──Begin──> submitting ──Confirm──> confirmed
//	                     └──────Reject───> rejected ──Begin──> submitting
type Ballot struct {
	mu    sync.Mutex
	state State
	err   error
}

// NewBallot returns an idle ballot.
func NewBallot() *Ballot {
	return &Ballot{state: StateIdle}
}

// Begin moves the ballot into submitting. A rejected ballot may be retried.
func (b *Ballot) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateSubmitting:
		return ErrInFlight
	case StateConfirmed:
		return ErrConfirmed
	}
	b.state = StateSubmitting
	b.err = nil
	return nil
}

// Confirm records a successful submission.
func (b *Ballot) Confirm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSubmitting {
		b.state = StateConfirmed
	}
}

// Reject records a failed submission and its cause.
func (b *Ballot) Reject(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSubmitting {
		b.state = StateRejected
		b.err = err
	}
}

// State returns the current state and, when rejected, the cause.
func (b *Ballot) State() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.err
}
