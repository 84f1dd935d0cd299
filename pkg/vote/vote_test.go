package vote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/events"
)

func TestBallotTransitions(t *testing.T) {
	b := NewBallot()
	state, _ := b.State()
	assert.Equal(t, StateIdle, state)

	require.NoError(t, b.Begin())
	assert.ErrorIs(t, b.Begin(), ErrInFlight)

	cause := errors.New("network down")
	b.Reject(cause)
	state, err := b.State()
	assert.Equal(t, StateRejected, state)
	assert.Equal(t, cause, err)

	require.NoError(t, b.Begin(), "rejected ballots can be retried")
	b.Confirm()
	state, err = b.State()
	assert.Equal(t, StateConfirmed, state)
	assert.NoError(t, err)
	assert.ErrorIs(t, b.Begin(), ErrConfirmed)
}

func TestBallotIgnoresOutOfOrderCalls(t *testing.T) {
	b := NewBallot()
	b.Confirm()
	b.Reject(errors.New("x"))
	state, _ := b.State()
	assert.Equal(t, StateIdle, state)
}

func TestTrackerRejectsSecondInFlightSubmission(t *testing.T) {
	tr := NewTracker()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan State)

	go func() {
		state, _ := tr.Submit(context.Background(), "session:s1|question:q1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
		done <- state
	}()

	<-started
	assert.True(t, tr.InFlight("session:s1|question:q1"))

	called := false
	state, err := tr.Submit(context.Background(), "session:s1|question:q1", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, StateRejected, state)
	assert.False(t, called)

	// A different target is independent.
	state, err = tr.Submit(context.Background(), "session:s1|question:q2", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, state)

	close(release)
	assert.Equal(t, StateConfirmed, <-done)
	assert.False(t, tr.InFlight("session:s1|question:q1"))
}

func TestTrackerReleasesAfterFailure(t *testing.T) {
	tr := NewTracker()
	boom := errors.New("boom")

	state, err := tr.Submit(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateRejected, state)
	assert.False(t, tr.InFlight("k"))
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore, *recorder) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	rec := &recorder{}
	return NewService(st, rec, nil), st, rec
}

func TestCastQuestionVoteTwiceIsAlreadyVoted(t *testing.T) {
	svc, st, rec := newTestService(t)
	ctx := context.Background()

	q := &store.Question{Text: "Should cities ban cars downtown?"}
	require.NoError(t, st.CreateQuestion(ctx, q))
	voter := store.Voter{SessionID: "sess-1"}

	res, err := svc.CastQuestionVote(ctx, q.ID, voter, store.ChoiceYes)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.State)
	assert.Equal(t, 1, res.Tally.Yes)

	res, err = svc.CastQuestionVote(ctx, q.ID, voter, store.ChoiceNo)
	assert.ErrorIs(t, err, store.ErrAlreadyVoted)
	assert.Equal(t, StateRejected, res.State)

	tally, err := st.VoteTally(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Total())
	assert.Equal(t, 1, tally.Yes)

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.VoteCast, rec.events[0].Type)
	assert.Equal(t, q.ID, rec.events[0].QuestionID)
}

func TestCastQuestionVoteInvalidChoice(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CastQuestionVote(context.Background(), "q", store.Voter{SessionID: "s"}, store.Choice("maybe"))
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestCastTopicVoteCountsRows(t *testing.T) {
	svc, st, rec := newTestService(t)
	ctx := context.Background()

	saved, err := st.InsertTopics(ctx, []store.TrendingTopic{{
		Source: "reddit", RawTopic: "Electric vehicle sales hit record high",
		QuestionText: "Do you support EV subsidies?", TrendingScore: 42, IsSafe: true,
	}})
	require.NoError(t, err)
	topicID := saved[0].ID

	for _, v := range []store.Voter{{SessionID: "a"}, {SessionID: "b"}, {UserID: "u1"}} {
		_, err := svc.CastTopicVote(ctx, topicID, v)
		require.NoError(t, err)
	}
	res, err := svc.CastTopicVote(ctx, topicID, store.Voter{SessionID: "a"})
	assert.ErrorIs(t, err, store.ErrAlreadyVoted)
	assert.Equal(t, StateRejected, res.State)

	topic, err := st.GetTopic(ctx, topicID)
	require.NoError(t, err)
	assert.Equal(t, 3, topic.VoteCount)
	assert.Len(t, rec.events, 3)
	assert.Equal(t, events.TrendVoteCast, rec.events[2].Type)
	assert.Equal(t, 3, rec.events[2].Data["vote_count"])
}
