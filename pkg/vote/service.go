package vote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/events"
)

// VoteStore is the slice of the store used for voting.
type VoteStore interface {
	CastVote(ctx context.Context, questionID string, voter store.Voter, choice store.Choice) (*store.Vote, error)
	VoteTally(ctx context.Context, questionID string) (store.Tally, error)
	CastTrendVote(ctx context.Context, topicID string, voter store.Voter) (*store.TrendVote, error)
	CountTrendVotes(ctx context.Context, topicID string) (int, error)
}

// QuestionResult is the outcome of a question vote.
type QuestionResult struct {
	State State       `json:"state"`
	Vote  *store.Vote `json:"vote,omitempty"`
	Tally store.Tally `json:"tally"`
}

// TopicResult is the outcome of a trending topic vote.
type TopicResult struct {
	State     State            `json:"state"`
	Vote      *store.TrendVote `json:"vote,omitempty"`
	VoteCount int              `json:"vote_count"`
}

// Service submits votes through the tracker and announces them on the bus.
// Uniqueness is enforced by the store; the tracker only rejects duplicate
// in-flight submissions.
type Service struct {
	store     VoteStore
	tracker   *Tracker
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates a vote service.
func NewService(s VoteStore, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, tracker: NewTracker(), publisher: publisher, logger: logger}
}

// Tracker exposes the in-flight tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// CastQuestionVote records a yes/no vote and returns the new tally.
func (s *Service) CastQuestionVote(ctx context.Context, questionID string, voter store.Voter, choice store.Choice) (*QuestionResult, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	res := &QuestionResult{}
	state, err := s.tracker.Submit(ctx, voter.Key()+"|question:"+questionID, func(ctx context.Context) error {
		v, err := s.store.CastVote(ctx, questionID, voter, choice)
		if err != nil {
			return err
		}
		res.Vote = v
		return nil
	})
	res.State = state
	if err != nil {
		return res, err
	}

	if tally, err := s.store.VoteTally(ctx, questionID); err != nil {
		s.logger.Warn("tally after vote failed", zap.String("question_id", questionID), zap.Error(err))
	} else {
		res.Tally = tally
	}

	s.publish(ctx, events.Event{
		Type:       events.VoteCast,
		QuestionID: questionID,
		Data:       map[string]any{"yes": res.Tally.Yes, "no": res.Tally.No},
	})
	return res, nil
}

// CastTopicVote records a vote on a trending topic and returns its count.
func (s *Service) CastTopicVote(ctx context.Context, topicID string, voter store.Voter) (*TopicResult, error) {
	res := &TopicResult{}
	state, err := s.tracker.Submit(ctx, voter.Key()+"|topic:"+topicID, func(ctx context.Context) error {
		v, err := s.store.CastTrendVote(ctx, topicID, voter)
		if err != nil {
			return err
		}
		res.Vote = v
		return nil
	})
	res.State = state
	if err != nil {
		return res, err
	}

	count, err := s.store.CountTrendVotes(ctx, topicID)
	if err != nil {
		s.logger.Warn("count after trend vote failed", zap.String("topic_id", topicID), zap.Error(err))
	}
	res.VoteCount = count

	s.publish(ctx, events.Event{
		Type:    events.TrendVoteCast,
		TopicID: topicID,
		Data:    map[string]any{"vote_count": count},
	})
	return res, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
