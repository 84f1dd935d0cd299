package source

import (
	"strings"
	"unicode/utf8"
)

// DefaultNoiseKeywords mark posts that are not topics: subreddit meta
// threads, live blogs and listicle filler.
var DefaultNoiseKeywords = []string{
	"megathread", "daily discussion", "weekly thread", "ama ",
	"[removed]", "[deleted]", "live updates", "open thread",
	"subscribe", "sponsored", "newsletter",
}

// Filter drops raw strings that cannot become a poll question.
type Filter struct {
	exclude  []string
	minRunes int
	maxRunes int
}

// NewFilter creates a filter with the default noise keywords plus extras.
func NewFilter(extraExclude []string) *Filter {
	exclude := make([]string, 0, len(DefaultNoiseKeywords)+len(extraExclude))
	for _, kw := range append(append([]string{}, DefaultNoiseKeywords...), extraExclude...) {
		exclude = append(exclude, strings.ToLower(kw))
	}
	return &Filter{exclude: exclude, minRunes: 12, maxRunes: 200}
}

// Keep reports whether title is usable as a topic.
func (f *Filter) Keep(title string) bool {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < f.minRunes || n > f.maxRunes {
		return false
	}

	lower := strings.ToLower(title)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}
