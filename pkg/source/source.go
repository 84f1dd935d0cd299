package source

import (
	"context"
	"net/http"
	"time"
)

// SourceType identifies where a raw topic came from.
type SourceType string

const (
	SourceReddit     SourceType = "reddit"
	SourceNewsAPI    SourceType = "newsapi"
	SourceRSS        SourceType = "rss"
	SourceScrape     SourceType = "scrape"
	SourceHackerNews SourceType = "hackernews"
	SourceStatic     SourceType = "static"

	// SourceNews names the headline chain (NewsAPI, then RSS, then scrape).
	SourceNews SourceType = "news"
)

const userAgent = "voicevoter/1.0"

// Item is a raw trend string plus the popularity signal it arrived with.
type Item struct {
	Source      SourceType `json:"source"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	URL         string     `json:"url,omitempty"`
	Score       int        `json:"score"` // normalized 0-100
	PublishedAt time.Time  `json:"published_at"`
}

// Source is the interface every collector implements. Collect makes a
// single attempt per endpoint; callers treat an error as "unavailable this
// cycle" and fall back.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) ([]Item, error)
}

// Titles returns the raw strings of items.
func Titles(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func capLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
