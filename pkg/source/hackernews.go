package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const hnBaseURL = "https://hacker-news.firebaseio.com/v0"

// HackerNews collects top stories from Hacker News.
type HackerNews struct {
	client  *http.Client
	baseURL string
	limit   int
	filter  *Filter
}

// NewHackerNews creates a new HN collector.
func NewHackerNews(limit int, timeout time.Duration, filter *Filter) *HackerNews {
	return &HackerNews{
		client:  newClient(timeout),
		baseURL: hnBaseURL,
		limit:   capLimit(limit),
		filter:  filter,
	}
}

// WithBaseURL points the collector at another host, used by tests.
func (h *HackerNews) WithBaseURL(u string) *HackerNews {
	h.baseURL = strings.TrimRight(u, "/")
	return h
}

func (h *HackerNews) Name() SourceType { return SourceHackerNews }

// Collect fetches story ids then each story one after another, stopping at
// the limit. Stories that fail to load are skipped.
func (h *HackerNews) Collect(ctx context.Context) ([]Item, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, id := range ids {
		if len(items) >= h.limit || ctx.Err() != nil {
			break
		}
		story, err := h.fetchItem(ctx, id)
		if err != nil || story == nil {
			continue
		}
		if h.filter != nil && !h.filter.Keep(story.Title) {
			continue
		}

		link := story.URL
		if link == "" {
			link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
		}
		items = append(items, Item{
			Source:      SourceHackerNews,
			Title:       story.Title,
			URL:         link,
			Score:       NormalizeScore(story.Score, SourceHackerNews),
			PublishedAt: time.Unix(story.Time, 0).UTC(),
		})
	}
	return items, nil
}

type hnStory struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
	Type  string `json:"type"`
}

func (h *HackerNews) fetchTopStories(ctx context.Context) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/topstories.json", nil)
	if err != nil {
		return nil, fmt.Errorf("create hn request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn top stories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn top stories status %d", resp.StatusCode)
	}

	var ids []int
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode hn top stories: %w", err)
	}
	return ids, nil
}

func (h *HackerNews) fetchItem(ctx context.Context, id int) (*hnStory, error) {
	url := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create hn item request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn item %d: %w", id, err)
	}
	defer resp.Body.Close()

	var story hnStory
	if err := json.NewDecoder(resp.Body).Decode(&story); err != nil {
		return nil, fmt.Errorf("decode hn item %d: %w", id, err)
	}

	if story.Type != "story" {
		return nil, nil
	}
	return &story, nil
}
