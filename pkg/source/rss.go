package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// RSSFeed is a named RSS/Atom feed URL.
type RSSFeed struct {
	Name string
	URL  string
}

// RSS collects headlines from news aggregator feeds.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []RSSFeed
	limit  int
	filter *Filter
	logger *zap.Logger
}

// NewRSS creates a new RSS collector.
func NewRSS(feeds []RSSFeed, limit int, timeout time.Duration, filter *Filter, logger *zap.Logger) *RSS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RSS{
		client: newClient(timeout),
		parser: gofeed.NewParser(),
		feeds:  feeds,
		limit:  capLimit(limit),
		filter: filter,
		logger: logger,
	}
}

func (r *RSS) Name() SourceType { return SourceRSS }

// Collect reads feeds in order until the limit is reached. A broken feed is
// skipped; the collector fails only when every feed fails.
func (r *RSS) Collect(ctx context.Context) ([]Item, error) {
	var (
		allItems []Item
		lastErr  error
	)

	for _, feed := range r.feeds {
		items, err := r.collectFeed(ctx, feed)
		if err != nil {
			r.logger.Debug("rss feed failed", zap.String("feed", feed.Name), zap.Error(err))
			lastErr = err
			continue
		}
		allItems = append(allItems, items...)
		if len(allItems) >= r.limit {
			return allItems[:r.limit], nil
		}
	}

	if len(allItems) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return allItems, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	var items []Item
	cutoff := time.Now().Add(-48 * time.Hour)

	for i, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		title := cleanHeadline(entry.Title)
		if r.filter != nil && !r.filter.Keep(title) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		items = append(items, Item{
			Source:      SourceRSS,
			Title:       title,
			Summary:     truncate(stripTags(entry.Description), 300),
			URL:         link,
			Score:       RankScore(i, len(parsed.Items)),
			PublishedAt: published,
		})
	}

	return items, nil
}
