package events

import (
	"context"
	"time"
)

// Type names a change notification.
type Type string

const (
	TopicsUpdated   Type = "topics.updated"
	VoteCast        Type = "vote.cast"
	TrendVoteCast   Type = "trend_vote.cast"
	QuestionCreated Type = "question.created"
	TrendCrowned    Type = "trend.crowned"
)

// Event is a single change notification. QuestionID and TopicID let
// subscribers filter without decoding Data.
type Event struct {
	Type       Type           `json:"type"`
	QuestionID string         `json:"question_id,omitempty"`
	TopicID    string         `json:"topic_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus fans events out to subscribers. The returned cancel func releases the
// subscription and closes its channel.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func stamp(e Event) Event {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}
