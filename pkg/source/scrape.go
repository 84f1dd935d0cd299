package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`^[\d\s.,+KMk]+(searches|views)?$`)
)

// Scrape extracts headlines from an HTML page that is only reachable
// through public CORS relay proxies. Proxies are tried in order.
type Scrape struct {
	client   *http.Client
	target   string
	selector string
	proxies  []string
	limit    int
	filter   *Filter
}

// NewScrape creates a new scraping collector.
func NewScrape(target, selector string, proxies []string, limit int, timeout time.Duration, filter *Filter) *Scrape {
	if selector == "" {
		selector = "h1, h2, h3"
	}
	return &Scrape{
		client:   newClient(timeout),
		target:   target,
		selector: selector,
		proxies:  proxies,
		limit:    capLimit(limit),
		filter:   filter,
	}
}

func (s *Scrape) Name() SourceType { return SourceScrape }

func (s *Scrape) Collect(ctx context.Context) ([]Item, error) {
	if s.target == "" || len(s.proxies) == 0 {
		return nil, errors.New("scrape: no target or proxies configured")
	}

	var errs []error
	for _, proxy := range s.proxies {
		titles, err := s.fetchVia(ctx, proxy)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(titles) == 0 {
			errs = append(errs, fmt.Errorf("proxy %s: no headlines", proxyHost(proxy)))
			continue
		}

		now := time.Now().UTC()
		items := make([]Item, 0, len(titles))
		for i, t := range titles {
			items = append(items, Item{
				Source:      SourceScrape,
				Title:       t,
				URL:         s.target,
				Score:       RankScore(i, len(titles)),
				PublishedAt: now,
			})
		}
		return items, nil
	}
	return nil, errors.Join(errs...)
}

func (s *Scrape) fetchVia(ctx context.Context, proxy string) ([]string, error) {
	reqURL := proxy + url.QueryEscape(s.target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", proxyHost(proxy), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy %s status %d", proxyHost(proxy), resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse scraped html: %w", err)
	}

	seen := make(map[string]bool)
	var titles []string
	doc.Find(s.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := cleanText(sel.Text())
		key := strings.ToLower(text)
		if text == "" || seen[key] || numberRe.MatchString(text) {
			return true
		}
		if s.filter != nil && !s.filter.Keep(text) {
			return true
		}
		seen[key] = true
		titles = append(titles, text)
		return len(titles) < s.limit
	})
	return titles, nil
}

func proxyHost(proxy string) string {
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return proxy
	}
	return u.Host
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// stripTags returns the text content of an HTML fragment.
func stripTags(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return cleanText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	return cleanText(doc.Text())
}
