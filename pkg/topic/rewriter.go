package topic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/source"
)

// Candidate is a rewritten topic ready to be stored.
type Candidate struct {
	RawTopic      string   `json:"raw_topic"`
	Summary       string   `json:"summary"`
	QuestionText  string   `json:"question_text"`
	Context       string   `json:"context"`
	Category      string   `json:"category"`
	Keywords      []string `json:"keywords"`
	TrendingScore int      `json:"trending_score"`
	IsSafe        bool     `json:"is_safe"`
}

// Topic converts the candidate into a storable row.
func (c Candidate) Topic(src source.SourceType, scrapedAt time.Time) store.TrendingTopic {
	return store.TrendingTopic{
		Source:        string(src),
		RawTopic:      c.RawTopic,
		Summary:       c.Summary,
		QuestionText:  c.QuestionText,
		Context:       c.Context,
		Category:      c.Category,
		Keywords:      c.Keywords,
		TrendingScore: clampScore(c.TrendingScore),
		IsActive:      true,
		IsSafe:        c.IsSafe,
		ScrapedAt:     scrapedAt,
	}
}

// Rewriter turns a batch of raw items from one source into candidates.
// Implementations never fail; they degrade to the heuristic path.
type Rewriter interface {
	Rewrite(ctx context.Context, src source.SourceType, items []source.Item) []Candidate
}

// HeuristicRewriter maps every item through a Classifier.
type HeuristicRewriter struct {
	classifier Classifier
}

// NewHeuristicRewriter creates a rewriter backed by c.
func NewHeuristicRewriter(c Classifier) *HeuristicRewriter {
	return &HeuristicRewriter{classifier: c}
}

func (h *HeuristicRewriter) Rewrite(_ context.Context, src source.SourceType, items []source.Item) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		cl := h.classifier.Classify(it.Title)
		summary := strings.TrimSpace(it.Summary)
		if summary == "" {
			summary = it.Title
		}
		out = append(out, Candidate{
			RawTopic:      it.Title,
			Summary:       summary,
			QuestionText:  cl.Question,
			Context:       fmt.Sprintf("Trending on %s", sourceLabel(src)),
			Category:      cl.Category,
			Keywords:      cl.Keywords,
			TrendingScore: it.Score,
			IsSafe:        cl.IsSafe,
		})
	}
	return out
}

func sourceLabel(src source.SourceType) string {
	switch src {
	case source.SourceReddit:
		return "Reddit"
	case source.SourceNewsAPI, source.SourceNews:
		return "the news"
	case source.SourceRSS:
		return "news feeds"
	case source.SourceHackerNews:
		return "Hacker News"
	case source.SourceScrape:
		return "search trends"
	}
	return string(src)
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
