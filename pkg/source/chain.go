package source

import (
	"context"

	"go.uber.org/zap"
)

// Chain tries its sources in order and returns the first non-empty result.
// Failures are logged and treated as empty; Collect never returns an error.
type Chain struct {
	name    SourceType
	sources []Source
	logger  *zap.Logger
}

// NewChain builds a fallback chain reported under name.
func NewChain(name SourceType, logger *zap.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{name: name, sources: sources, logger: logger}
}

func (c *Chain) Name() SourceType { return c.name }

func (c *Chain) Collect(ctx context.Context) ([]Item, error) {
	for _, src := range c.sources {
		if ctx.Err() != nil {
			return nil, nil
		}
		items, err := src.Collect(ctx)
		if err != nil {
			c.logger.Warn("source unavailable",
				zap.String("chain", string(c.name)),
				zap.String("source", string(src.Name())),
				zap.Error(err))
			continue
		}
		if len(items) > 0 {
			c.logger.Debug("source collected",
				zap.String("chain", string(c.name)),
				zap.String("source", string(src.Name())),
				zap.Int("items", len(items)))
			return items, nil
		}
	}
	return nil, nil
}
