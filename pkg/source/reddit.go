package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const redditBaseURL = "https://www.reddit.com"

// Reddit collects hot posts from the public JSON listing. No OAuth.
type Reddit struct {
	client     *http.Client
	baseURL    string
	subreddits []string
	limit      int
	filter     *Filter
}

// NewReddit creates a new Reddit collector.
func NewReddit(subreddits []string, limit int, timeout time.Duration, filter *Filter) *Reddit {
	if len(subreddits) == 0 {
		subreddits = []string{"news", "worldnews", "technology"}
	}
	return &Reddit{
		client:     newClient(timeout),
		baseURL:    redditBaseURL,
		subreddits: subreddits,
		limit:      capLimit(limit),
		filter:     filter,
	}
}

// WithBaseURL points the collector at another host, used by tests.
func (r *Reddit) WithBaseURL(u string) *Reddit {
	r.baseURL = strings.TrimRight(u, "/")
	return r
}

func (r *Reddit) Name() SourceType { return SourceReddit }

// Collect reads the combined hot listing of all subreddits in one request.
func (r *Reddit) Collect(ctx context.Context) ([]Item, error) {
	reqURL := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", r.baseURL, strings.Join(r.subreddits, "+"), r.limit*2)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create reddit request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reddit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}

	var items []Item
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied || post.Over18 {
			continue
		}
		if r.filter != nil && !r.filter.Keep(post.Title) {
			continue
		}

		items = append(items, Item{
			Source:      SourceReddit,
			Title:       strings.TrimSpace(post.Title),
			Summary:     truncate(post.Selftext, 300),
			URL:         redditBaseURL + post.Permalink,
			Score:       NormalizeScore(post.Score, SourceReddit),
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
		if len(items) >= r.limit {
			break
		}
	}

	return items, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
	Over18     bool    `json:"over_18"`
}
