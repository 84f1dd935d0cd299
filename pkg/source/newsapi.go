package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NewsAPI collects top headlines from a NewsAPI-compatible endpoint.
type NewsAPI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	country string
	limit   int
}

// NewNewsAPI creates a new headlines collector.
func NewNewsAPI(baseURL, apiKey, country string, limit int, timeout time.Duration) *NewsAPI {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	if country == "" {
		country = "us"
	}
	return &NewsAPI{
		client:  newClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		country: country,
		limit:   capLimit(limit),
	}
}

func (n *NewsAPI) Name() SourceType { return SourceNewsAPI }

// WithLimit returns a copy of the collector capped at limit headlines.
func (n *NewsAPI) WithLimit(limit int) *NewsAPI {
	c := *n
	c.limit = capLimit(limit)
	return &c
}

func (n *NewsAPI) Collect(ctx context.Context) ([]Item, error) {
	if n.apiKey == "" {
		return nil, errors.New("newsapi: no api key")
	}

	params := url.Values{}
	params.Set("country", n.country)
	params.Set("pageSize", fmt.Sprintf("%d", n.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/v2/top-headlines?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch newsapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi status %d", resp.StatusCode)
	}

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s", result.Message)
	}

	var items []Item
	for i, a := range result.Articles {
		title := cleanHeadline(a.Title)
		if title == "" {
			continue
		}
		published := time.Now().UTC()
		if !a.PublishedAt.IsZero() {
			published = a.PublishedAt.UTC()
		}
		items = append(items, Item{
			Source:      SourceNewsAPI,
			Title:       title,
			Summary:     truncate(a.Description, 300),
			URL:         a.URL,
			Score:       RankScore(i, len(result.Articles)),
			PublishedAt: published,
		})
		if len(items) >= n.limit {
			break
		}
	}
	return items, nil
}

// cleanHeadline strips the " - Publisher" suffix news aggregators append.
func cleanHeadline(title string) string {
	title = strings.TrimSpace(title)
	if title == "[Removed]" {
		return ""
	}
	if idx := strings.LastIndex(title, " - "); idx > 0 && len(title)-idx < 40 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}
