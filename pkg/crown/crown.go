package crown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/alert"
	"github.com/elonfeng/voicevoter/pkg/events"
)

// DateLayout is the calendar-day key of a crowned trend.
const DateLayout = "2006-01-02"

// ErrNoTopics is returned when there is no active topic to crown.
var ErrNoTopics = errors.New("no active trending topics to crown")

// Store is the slice of the store the crowner needs.
type Store interface {
	TopTopic(ctx context.Context) (*store.TrendingTopic, error)
	UpsertCrown(ctx context.Context, c *store.CrownedTrend) error
}

// Result is the crowned row together with the winning topic.
type Result struct {
	Crown *store.CrownedTrend  `json:"crown"`
	Topic *store.TrendingTopic `json:"topic"`
}

// Crowner picks the day's winning topic.
type Crowner struct {
	store     Store
	publisher events.Publisher
	alerts    *alert.Manager
	logger    *zap.Logger
}

// New creates a crowner. publisher and alerts may be nil.
func New(s Store, publisher events.Publisher, alerts *alert.Manager, logger *zap.Logger) *Crowner {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crowner{store: s, publisher: publisher, alerts: alerts, logger: logger}
}

// Crown upserts the winner for the calendar day of date. The top active
// topic wins by vote count, then trending score; zero votes is fine.
func (c *Crowner) Crown(ctx context.Context, date time.Time) (*Result, error) {
	topic, err := c.store.TopTopic(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoTopics
	}
	if err != nil {
		return nil, fmt.Errorf("select top topic: %w", err)
	}

	crowned := &store.CrownedTrend{
		TrendingTopicID: topic.ID,
		VoteCount:       topic.VoteCount,
		CrownedDate:     date.Format(DateLayout),
		VoiceScript:     VoiceScript(topic),
	}
	if err := c.store.UpsertCrown(ctx, crowned); err != nil {
		return nil, fmt.Errorf("save crowned trend: %w", err)
	}

	c.logger.Info("trend crowned",
		zap.String("date", crowned.CrownedDate),
		zap.String("topic_id", topic.ID),
		zap.Int("votes", topic.VoteCount))

	if err := c.publisher.Publish(ctx, events.Event{
		Type:    events.TrendCrowned,
		TopicID: topic.ID,
		Data:    map[string]any{"date": crowned.CrownedDate, "vote_count": crowned.VoteCount},
	}); err != nil {
		c.logger.Warn("publish trend.crowned failed", zap.Error(err))
	}

	if c.alerts.HasNotifiers() {
		if err := c.alerts.Broadcast(ctx, alert.Crowned(crowned, topic)); err != nil {
			c.logger.Warn("crown announcement failed", zap.Error(err))
		}
	}

	return &Result{Crown: crowned, Topic: topic}, nil
}

// VoiceScript is the text read aloud when announcing the winner.
func VoiceScript(t *store.TrendingTopic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's crowned trend is: %s. ", strings.TrimRight(t.RawTopic, ".!? "))
	if t.QuestionText != "" {
		fmt.Fprintf(&b, "The question was: %s ", t.QuestionText)
	}
	switch t.VoteCount {
	case 0:
		fmt.Fprintf(&b, "No votes are in yet, so it leads on a trending score of %d.", t.TrendingScore)
	case 1:
		b.WriteString("It won with 1 vote.")
	default:
		fmt.Fprintf(&b, "It won with %d votes.", t.VoteCount)
	}
	return b.String()
}
