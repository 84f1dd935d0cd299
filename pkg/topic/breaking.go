package topic

import (
	"strings"
	"unicode/utf8"
)

// DefaultUrgencyKeywords mark a headline as potentially breaking.
var DefaultUrgencyKeywords = []string{
	"breaking", "just in", "urgent", "developing", "live:", "alert",
	"emergency", "announces", "confirmed", "exclusive",
}

// DefaultSimilarityThreshold is the overlap above which a headline counts
// as a duplicate of an existing topic.
const DefaultSimilarityThreshold = 0.7

// Similarity returns the share of words longer than three letters that a
// and b have in common, relative to the larger of the two word sets.
func Similarity(a, b string) float64 {
	setA := significantWords(a)
	setB := significantWords(b)
	larger := max(len(setA), len(setB))
	if larger == 0 {
		return 0
	}

	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	return float64(shared) / float64(larger)
}

func significantWords(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(s) {
		if utf8.RuneCountInString(w) > 3 {
			set[w] = true
		}
	}
	return set
}

// BreakingDetector flags headlines that look urgent and are not already
// covered by an existing topic.
type BreakingDetector struct {
	keywords  []string
	threshold float64
}

// NewBreakingDetector creates a detector. Empty keywords or a non-positive
// threshold use the defaults.
func NewBreakingDetector(keywords []string, threshold float64) *BreakingDetector {
	if len(keywords) == 0 {
		keywords = DefaultUrgencyKeywords
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lower = append(lower, strings.ToLower(k))
	}
	return &BreakingDetector{keywords: lower, threshold: threshold}
}

// IsUrgent reports whether headline contains an urgency keyword.
func (d *BreakingDetector) IsUrgent(headline string) bool {
	lower := strings.ToLower(headline)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsNew reports whether headline is not a near-duplicate of any existing title.
func (d *BreakingDetector) IsNew(headline string, existing []string) bool {
	for _, title := range existing {
		if Similarity(headline, title) > d.threshold {
			return false
		}
	}
	return true
}

// Detect returns the headlines that are both urgent and new.
func (d *BreakingDetector) Detect(headlines, existing []string) []string {
	var out []string
	for _, h := range headlines {
		if d.IsUrgent(h) && d.IsNew(h, existing) {
			out = append(out, h)
		}
	}
	return out
}
