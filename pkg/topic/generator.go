package topic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/events"
	"github.com/elonfeng/voicevoter/pkg/source"
)

// TopicStore is the slice of the store the generator reads and writes.
type TopicStore interface {
	TopicTitles(ctx context.Context, since time.Time) ([]string, error)
	InsertTopics(ctx context.Context, topics []store.TrendingTopic) ([]store.TrendingTopic, error)
	DeactivateStaleTopics(ctx context.Context, olderThan time.Time) (int64, error)
}

// GeneratorConfig wires a Generator.
type GeneratorConfig struct {
	Sources    []source.Source
	Fallback   source.Source // used when every source comes back empty
	Rewriter   Rewriter
	Store      TopicStore
	Publisher  events.Publisher
	Delay      time.Duration // pause between sources
	StaleAfter time.Duration
	Logger     *zap.Logger
}

// Generator runs one topic generation pass: collect, rewrite, moderate,
// persist and notify.
type Generator struct {
	sources    []source.Source
	fallback   source.Source
	rewriter   Rewriter
	store      TopicStore
	publisher  events.Publisher
	delay      time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Result summarizes a generation pass.
type Result struct {
	Collected    int                   `json:"collected"`
	Unsafe       int                   `json:"unsafe"`
	Duplicates   int                   `json:"duplicates"`
	Stored       int                   `json:"stored"`
	Deactivated  int64                 `json:"deactivated"`
	UsedFallback bool                  `json:"used_fallback"`
	Topics       []store.TrendingTopic `json:"topics"`
}

// NewGenerator creates a generator. A nil fallback uses the built-in static
// topics and a nil rewriter uses the heuristic classifier.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fallback == nil {
		cfg.Fallback = source.NewStatic(nil, 0)
	}
	if cfg.Rewriter == nil {
		cfg.Rewriter = NewHeuristicRewriter(NewHeuristic(nil))
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	return &Generator{
		sources:    cfg.Sources,
		fallback:   cfg.Fallback,
		rewriter:   cfg.Rewriter,
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		delay:      cfg.Delay,
		staleAfter: cfg.StaleAfter,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Run collects from every source in order, one after another, then stores
// the safe candidates in a single batch. A headline already stored within
// the stale window counts as a duplicate.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	scrapedAt := g.now().UTC()
	seen := make(map[string]bool)
	var topics []store.TrendingTopic

	existing, err := g.store.TopicTitles(ctx, scrapedAt.Add(-g.staleAfter))
	if err != nil {
		g.logger.Warn("loading recent topic titles failed", zap.Error(err))
	}
	for _, title := range existing {
		seen[strings.ToLower(title)] = true
	}

	add := func(src source.SourceType, items []source.Item) {
		res.Collected += len(items)
		for _, c := range g.rewriter.Rewrite(ctx, src, items) {
			if !c.IsSafe {
				res.Unsafe++
				g.logger.Debug("unsafe topic dropped", zap.String("topic", c.RawTopic))
				continue
			}
			key := strings.ToLower(c.RawTopic)
			if seen[key] {
				res.Duplicates++
				continue
			}
			seen[key] = true
			topics = append(topics, c.Topic(src, scrapedAt))
		}
	}

	for i, src := range g.sources {
		if i > 0 && g.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.delay):
			}
		}

		items, err := src.Collect(ctx)
		if err != nil {
			g.logger.Warn("source failed", zap.String("source", string(src.Name())), zap.Error(err))
			continue
		}
		g.logger.Info("source collected", zap.String("source", string(src.Name())), zap.Int("items", len(items)))
		if len(items) > 0 {
			add(src.Name(), items)
		}
	}

	if res.Collected == 0 {
		items, err := g.fallback.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect fallback topics: %w", err)
		}
		res.UsedFallback = true
		g.logger.Info("all sources empty, using fallback topics", zap.Int("items", len(items)))
		add(g.fallback.Name(), items)
	}

	stored, err := g.store.InsertTopics(ctx, topics)
	if err != nil {
		return nil, fmt.Errorf("insert topics: %w", err)
	}
	res.Stored = len(stored)
	res.Topics = stored

	deactivated, err := g.store.DeactivateStaleTopics(ctx, g.now().UTC().Add(-g.staleAfter))
	if err != nil {
		g.logger.Warn("stale topic cleanup failed", zap.Error(err))
	}
	res.Deactivated = deactivated

	if err := g.publisher.Publish(ctx, events.Event{
		Type: events.TopicsUpdated,
		Data: map[string]any{"stored": res.Stored, "deactivated": res.Deactivated},
	}); err != nil {
		g.logger.Warn("publish topics.updated failed", zap.Error(err))
	}

	g.logger.Info("generation complete",
		zap.Int("collected", res.Collected),
		zap.Int("stored", res.Stored),
		zap.Int("unsafe", res.Unsafe),
		zap.Int64("deactivated", res.Deactivated),
		zap.Bool("fallback", res.UsedFallback))
	return res, nil
}
