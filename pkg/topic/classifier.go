package topic

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultCategory is returned when no keyword table matches.
const DefaultCategory = "General"

// Classification is the result of classifying one raw trend string.
type Classification struct {
	Question string   `json:"question"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	IsSafe   bool     `json:"is_safe"`
}

// Classifier turns a raw trend string into a poll question.
type Classifier interface {
	Classify(text string) Classification
}

// DefaultBanned marks topics that must never become a poll. Matching is by
// lowercase substring, so a word that contains a banned root is rejected too.
var DefaultBanned = []string{
	"porn", "nsfw", "nude", "rape", "suicide", "murder",
	"kill", "terrorist", "beheading", "gore", "slur",
}

var questionStarters = []string{
	"Should we be concerned about %s?",
	"Do you support %s?",
	"Is %s a good thing?",
	"Will %s change things for the better?",
	"Do you think %s matters?",
}

var modalVerbs = map[string]bool{"should": true, "must": true, "ban": true}

// Heuristic classifies topics with keyword tables and fixed question
// templates. It makes no network calls.
type Heuristic struct {
	banned []string
	pick   func(n int) int
}

// NewHeuristic creates a heuristic classifier with the default banned list
// plus extra entries.
func NewHeuristic(extraBanned []string) *Heuristic {
	banned := make([]string, 0, len(DefaultBanned)+len(extraBanned))
	for _, w := range append(append([]string{}, DefaultBanned...), extraBanned...) {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			banned = append(banned, w)
		}
	}
	return &Heuristic{banned: banned, pick: rand.IntN}
}

// WithPicker replaces the random starter selection, used by tests.
func (h *Heuristic) WithPicker(pick func(n int) int) *Heuristic {
	h.pick = pick
	return h
}

func (h *Heuristic) Classify(text string) Classification {
	text = strings.TrimSpace(text)
	return Classification{
		Question: h.Question(text),
		Category: Categorize(text),
		Keywords: Keywords(text),
		IsSafe:   h.IsSafe(text),
	}
}

// IsSafe reports whether text contains none of the banned substrings.
func (h *Heuristic) IsSafe(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range h.banned {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

// Question rewrites text as a yes/no question.
func (h *Heuristic) Question(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if strings.HasSuffix(text, "?") {
		return text
	}

	body := strings.TrimRight(text, ".!;:, ")
	words := tokenize(body)
	if len(words) > 0 && modalVerbs[words[0]] {
		return upperFirst(body) + "?"
	}
	for _, w := range words {
		if modalVerbs[w] {
			return "Do you agree: " + body + "?"
		}
	}

	starter := questionStarters[h.pick(len(questionStarters))]
	return strings.Replace(starter, "%s", lowerFirst(body), 1)
}

// Keywords returns up to five distinct significant words of text.
func Keywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return unicode.ToLower(r)
		case r == '-' || r == '/':
			return ' '
		}
		return -1
	}, text)

	seen := make(map[string]bool)
	keywords := make([]string, 0, 5)
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

// tokenize splits text into lowercase letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// lowerFirst lowercases the first letter unless the first word is an
// acronym such as "AI" or "NASA".
func lowerFirst(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return s
	}
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(first)) + s[size:]
}

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true,
	"being": true, "could": true, "does": true, "from": true, "have": true,
	"here": true, "into": true, "just": true, "more": true, "most": true,
	"much": true, "over": true, "said": true, "says": true, "should": true,
	"some": true, "than": true, "that": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "very": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true, "the": true, "and": true, "for": true,
	"why": true, "how": true, "amid": true, "week": true, "today": true,
}
