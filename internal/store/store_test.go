package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTopic(t *testing.T, s *SQLiteStore, raw string, score int) TrendingTopic {
	t.Helper()
	saved, err := s.InsertTopics(context.Background(), []TrendingTopic{{
		Source:        "reddit",
		RawTopic:      raw,
		QuestionText:  "Do you support " + raw + "?",
		Category:      "Technology",
		Keywords:      []string{"test"},
		TrendingScore: score,
		IsSafe:        true,
	}})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	return saved[0]
}

func TestCurrentQuestionIsNewestApproved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CurrentQuestion(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateQuestion(ctx, &Question{Text: "Old?", CreatedAt: base}))
	require.NoError(t, s.CreateQuestion(ctx, &Question{Text: "New?", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.CreateQuestion(ctx, &Question{
		Text:             "Pending?",
		ModerationStatus: ModerationPending,
		CreatedAt:        base.Add(2 * time.Hour),
	}))

	q, err := s.CurrentQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New?", q.Text)
	assert.Equal(t, SourceUser, q.Source)
}

func TestSetModerationStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := &Question{Text: "Should cities ban cars?", ModerationStatus: ModerationPending}
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.SetModerationStatus(ctx, q.ID, ModerationApproved))

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, ModerationApproved, got.ModerationStatus)

	assert.ErrorIs(t, s.SetModerationStatus(ctx, "missing", ModerationApproved), ErrNotFound)
	assert.Error(t, s.SetModerationStatus(ctx, q.ID, "maybe"))
}

func TestCastVoteNeedsApprovedQuestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := &Question{Text: "Should cities ban cars?", ModerationStatus: ModerationPending}
	require.NoError(t, s.CreateQuestion(ctx, pending))
	rejected := &Question{Text: "Should pets vote?", ModerationStatus: ModerationRejected}
	require.NoError(t, s.CreateQuestion(ctx, rejected))

	voter := Voter{SessionID: "sess-1"}
	for _, id := range []string{pending.ID, rejected.ID, "missing"} {
		_, err := s.CastVote(ctx, id, voter, ChoiceYes)
		assert.ErrorIs(t, err, ErrTargetUnavailable, id)
	}

	require.NoError(t, s.SetModerationStatus(ctx, pending.ID, ModerationApproved))
	_, err := s.CastVote(ctx, pending.ID, voter, ChoiceYes)
	require.NoError(t, err)

	tally, err := s.VoteTally(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Zero(t, tally.Total())
}

func TestDuplicateIDIsConflictNotVote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := &Question{ID: "q-1", Text: "Is remote work here to stay?"}
	require.NoError(t, s.CreateQuestion(ctx, q))

	err := s.CreateQuestion(ctx, &Question{ID: "q-1", Text: "Again?"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrAlreadyVoted)

	_, err = s.CastVote(ctx, q.ID, Voter{SessionID: "sess-1"}, ChoiceYes)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, q.ID, Voter{SessionID: "sess-1"}, ChoiceNo)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestCastVoteTwiceIsAlreadyVoted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := &Question{Text: "Is remote work here to stay?"}
	require.NoError(t, s.CreateQuestion(ctx, q))

	voter := Voter{SessionID: "sess-1"}
	v, err := s.CastVote(ctx, q.ID, voter, ChoiceYes)
	require.NoError(t, err)
	assert.True(t, v.IsAnonymous)

	_, err = s.CastVote(ctx, q.ID, voter, ChoiceNo)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	// A logged-in user is a distinct identity.
	_, err = s.CastVote(ctx, q.ID, Voter{UserID: "user-1"}, ChoiceNo)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, q.ID, Voter{UserID: "user-1", SessionID: "sess-2"}, ChoiceYes)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	tally, err := s.VoteTally(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Yes)
	assert.Equal(t, 1, tally.No)
	assert.Equal(t, 50, tally.YesPercent())

	found, err := s.FindVote(ctx, q.ID, voter)
	require.NoError(t, err)
	assert.Equal(t, ChoiceYes, found.Choice)
}

func TestCastVoteValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CastVote(ctx, "missing-question", Voter{SessionID: "s"}, ChoiceYes)
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	_, err = s.CastVote(ctx, "q", Voter{}, ChoiceYes)
	assert.ErrorIs(t, err, ErrNoVoter)

	_, err = s.CastVote(ctx, "q", Voter{SessionID: "s"}, "maybe")
	assert.Error(t, err)
}

func TestInsertTopicsSkipsUnsafe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.InsertTopics(ctx, []TrendingTopic{
		{Source: "news", RawTopic: "Solar farms expand", QuestionText: "Do you support solar farms?", IsSafe: true},
		{Source: "news", RawTopic: "Something violent", QuestionText: "?", IsSafe: false},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "General", saved[0].Category)

	topics, err := s.ListTopics(ctx, TopicListOpts{})
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "Solar farms expand", topics[0].RawTopic)
	assert.Equal(t, []string{}, topics[0].Keywords)
}

func TestTrendVoteCountMatchesRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := insertTopic(t, s, "Quantum chips", 10)
	voters := []Voter{{SessionID: "a"}, {SessionID: "b"}, {UserID: "u1"}}
	for _, v := range voters {
		_, err := s.CastTrendVote(ctx, topic.ID, v)
		require.NoError(t, err)
	}
	_, err := s.CastTrendVote(ctx, topic.ID, Voter{SessionID: "a"})
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	got, err := s.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	rows, err := s.CountTrendVotes(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, rows, got.VoteCount)
}

func TestCastTrendVoteUnavailable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CastTrendVote(ctx, "nope", Voter{SessionID: "a"})
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }
	topic := insertTopic(t, s, "Old news", 5)
	s.now = func() time.Time { return time.Now().UTC() }

	n, err := s.DeactivateStaleTopics(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.CastTrendVote(ctx, topic.ID, Voter{SessionID: "a"})
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestDeactivateStaleKeepsVotedTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }
	voted := insertTopic(t, s, "Voted topic", 5)
	insertTopic(t, s, "Ignored topic", 5)
	_, err := s.CastTrendVote(ctx, voted.ID, Voter{SessionID: "x"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().UTC() }

	n, err := s.DeactivateStaleTopics(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	active, err := s.ListTopics(ctx, TopicListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, voted.ID, active[0].ID)
}

func TestTimeArgumentsIgnoreLocalZone(t *testing.T) {
	local := time.Local
	time.Local = time.FixedZone("JST", 9*60*60)
	t.Cleanup(func() { time.Local = local })

	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now.Add(-16 * time.Hour).UTC() }
	recent := insertTopic(t, s, "Recent topic", 5)
	s.now = func() time.Time { return now.Add(-30 * time.Hour).UTC() }
	insertTopic(t, s, "Old topic", 5)

	titles, err := s.TopicTitles(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"Recent topic"}, titles)

	since, err := s.ListTopics(ctx, TopicListOpts{Since: now.In(time.FixedZone("PDT", -7*60*60)).Add(-20 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, recent.ID, since[0].ID)

	n, err := s.DeactivateStaleTopics(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only the 30h old topic is stale")

	active, err := s.ListTopics(ctx, TopicListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, recent.ID, active[0].ID)
}

func TestTopTopicOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.TopTopic(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	low := insertTopic(t, s, "Low score", 10)
	high := insertTopic(t, s, "High score", 90)

	top, err := s.TopTopic(ctx)
	require.NoError(t, err)
	assert.Equal(t, high.ID, top.ID, "ties on votes break by trending score")

	_, err = s.CastTrendVote(ctx, low.ID, Voter{SessionID: "s"})
	require.NoError(t, err)

	top, err = s.TopTopic(ctx)
	require.NoError(t, err)
	assert.Equal(t, low.ID, top.ID)
}

func TestCreateQuestionFromTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := insertTopic(t, s, "Mars mission", 42)
	q, err := s.CreateQuestionFromTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.True(t, q.IsTrending)
	assert.Equal(t, SourceTrending, q.Source)
	require.NotNil(t, q.TrendingScore)
	assert.Equal(t, 42, *q.TrendingScore)

	current, err := s.CurrentQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, q.ID, current.ID)

	_, err = s.CreateQuestionFromTopic(ctx, "missing")
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestUpsertCrownReplacesSameDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertTopic(t, s, "Topic A", 1)
	b := insertTopic(t, s, "Topic B", 2)

	first := &CrownedTrend{TrendingTopicID: a.ID, CrownedDate: "2026-10-18", VoiceScript: "A wins"}
	require.NoError(t, s.UpsertCrown(ctx, first))

	second := &CrownedTrend{TrendingTopicID: b.ID, CrownedDate: "2026-10-18", VoiceScript: "B wins"}
	require.NoError(t, s.UpsertCrown(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetCrown(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.TrendingTopicID)
	assert.Equal(t, "B wins", got.VoiceScript)

	crowns, err := s.ListCrowns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, crowns, 1)

	_, err = s.GetCrown(ctx, "2026-10-17")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCategoriesAndAITopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, len(seedCategories))

	topic := &AITopic{CategoryID: cats[0].ID, Title: "Robotaxis", QuestionText: "Would you ride a robotaxi?"}
	require.NoError(t, s.CreateAITopic(ctx, topic))

	list, err := s.ListAITopics(ctx, cats[0].ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Robotaxis", list[0].Title)

	err = s.CreateAITopic(ctx, &AITopic{CategoryID: "nope", Title: "x", QuestionText: "x?"})
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestSchedulerStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadSchedulerState(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, empty.LastUpdate)

	last := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	next := last.Add(3 * time.Hour)
	require.NoError(t, s.SaveSchedulerState(ctx, "main", &SchedulerState{
		LastUpdate: &last,
		NextUpdate: &next,
		IsUpdating: true,
	}))

	got, err := s.LoadSchedulerState(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, got.LastUpdate)
	assert.True(t, last.Equal(*got.LastUpdate))
	assert.True(t, next.Equal(*got.NextUpdate))
	assert.Nil(t, got.LastBreakingCheck)
	assert.True(t, got.IsUpdating)
}
