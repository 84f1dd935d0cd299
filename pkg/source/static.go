package source

import (
	"context"
	"time"
)

// DefaultFallbackTopics are served when every live source is down.
var DefaultFallbackTopics = []string{
	"AI breakthrough in medical diagnosis",
	"Four-day work week trials expand",
	"Cities consider banning gas-powered leaf blowers",
	"Social media age limits for teenagers",
	"Electric vehicle sales hit record high",
	"Remote work policies at major companies",
	"Space tourism flights open to the public",
	"Schools should ban smartphones in class",
	"Lab-grown meat approved for restaurants",
	"Universal basic income pilot results",
}

// Static serves a fixed list of topics and never fails.
type Static struct {
	name   SourceType
	topics []string
	limit  int
}

// NewStatic creates a static source. An empty list uses DefaultFallbackTopics.
func NewStatic(topics []string, limit int) *Static {
	if len(topics) == 0 {
		topics = DefaultFallbackTopics
	}
	return &Static{name: SourceStatic, topics: topics, limit: capLimit(limit)}
}

func (s *Static) Name() SourceType { return s.name }

func (s *Static) Collect(ctx context.Context) ([]Item, error) {
	now := time.Now().UTC()
	n := len(s.topics)
	if n > s.limit {
		n = s.limit
	}
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, Item{
			Source:      s.name,
			Title:       s.topics[i],
			Score:       RankScore(i, n),
			PublishedAt: now,
		})
	}
	return items, nil
}
