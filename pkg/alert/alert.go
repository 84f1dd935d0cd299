package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/voicevoter/internal/store"
)

const sendTimeout = 10 * time.Second

// Kind says why an announcement is sent.
type Kind string

const (
	KindCrowned  Kind = "crowned"
	KindBreaking Kind = "breaking"
)

// Notification is the data sent to announcement destinations.
type Notification struct {
	Kind      Kind                  `json:"kind"`
	Title     string                `json:"title"`
	Question  string                `json:"question,omitempty"`
	Body      string                `json:"body"`
	Category  string                `json:"category,omitempty"`
	VoteCount int                   `json:"vote_count"`
	Score     int                   `json:"trending_score"`
	Date      string                `json:"date,omitempty"`
	Topics    []store.TrendingTopic `json:"topics,omitempty"`
}

// Notifier delivers announcements to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to every notifier and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Crowned builds the announcement for a daily winner.
func Crowned(c *store.CrownedTrend, t *store.TrendingTopic) *Notification {
	return &Notification{
		Kind:      KindCrowned,
		Title:     "Trend of the day: " + t.RawTopic,
		Question:  t.QuestionText,
		Body:      c.VoiceScript,
		Category:  t.Category,
		VoteCount: c.VoteCount,
		Score:     t.TrendingScore,
		Date:      c.CrownedDate,
		Topics:    []store.TrendingTopic{*t},
	}
}

// Breaking builds the announcement for headlines that triggered an
// out-of-cycle generation run.
func Breaking(headlines []string, topics []store.TrendingTopic) *Notification {
	title := "Breaking news"
	if len(headlines) > 0 {
		title = "Breaking: " + headlines[0]
	}
	return &Notification{
		Kind:   KindBreaking,
		Title:  title,
		Body:   fmt.Sprintf("%d new topics are open for voting.", len(topics)),
		Topics: topics,
	}
}

func topicLines(n *Notification, limit int) []*store.TrendingTopic {
	var out []*store.TrendingTopic
	for i := range n.Topics {
		if len(out) == limit {
			break
		}
		out = append(out, &n.Topics[i])
	}
	return out
}

// post sends payload as JSON and treats any non-2xx answer as a failure.
func post(ctx context.Context, client *http.Client, dest, url string, payload any, header http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", dest, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", dest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d", dest, resp.StatusCode)
	}
	return nil
}
