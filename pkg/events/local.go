package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const subscriberBuffer = 64

type subscriber struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// offer delivers e without blocking and reports whether it was accepted.
func (s *subscriber) offer(e Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Local is an in-process Bus. Slow subscribers drop events instead of
// blocking publishers.
type Local struct {
	subs   *xsync.Map[uint64, *subscriber]
	nextID atomic.Uint64
	logger *zap.Logger
}

// NewLocal creates an in-process bus.
func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		subs:   xsync.NewMap[uint64, *subscriber](),
		logger: logger,
	}
}

func (l *Local) Publish(_ context.Context, e Event) error {
	e = stamp(e)
	l.subs.Range(func(id uint64, s *subscriber) bool {
		if !s.offer(e) {
			l.logger.Warn("event dropped for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("type", string(e.Type)))
		}
		return true
	})
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	id := l.nextID.Add(1)
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	l.subs.Store(id, s)

	cancel := func() {
		if _, ok := l.subs.LoadAndDelete(id); ok {
			s.close()
		}
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return s.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (l *Local) Subscribers() int {
	return l.subs.Size()
}

func (l *Local) Close() error {
	l.subs.Range(func(id uint64, s *subscriber) bool {
		l.subs.Delete(id)
		s.close()
		return true
	})
	return nil
}
