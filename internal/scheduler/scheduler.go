package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/pkg/alert"
	"github.com/elonfeng/voicevoter/pkg/crown"
	"github.com/elonfeng/voicevoter/pkg/source"
	"github.com/elonfeng/voicevoter/pkg/topic"
)

// ErrBusy is returned when a generation run is already in progress.
var ErrBusy = errors.New("generation already in progress")

// titleWindow bounds the existing topics a breaking headline is compared to.
const titleWindow = 24 * time.Hour

// Generator runs one topic generation pass.
type Generator interface {
	Run(ctx context.Context) (*topic.Result, error)
}

// Crowner picks the trend of the day.
type Crowner interface {
	Crown(ctx context.Context, date time.Time) (*crown.Result, error)
}

// TitleStore lists recent topic titles for duplicate detection.
type TitleStore interface {
	TopicTitles(ctx context.Context, since time.Time) ([]string, error)
}

// Config wires a Scheduler. News, Titles and Crowner are optional: without
// News and Titles no breaking checks run, and without Crowner or CrownSpec
// nothing is crowned automatically.
type Config struct {
	Generator        Generator
	News             source.Source
	Titles           TitleStore
	Detector         *topic.BreakingDetector
	Crowner          Crowner
	State            StateStore
	Alerts           *alert.Manager
	GenerateInterval time.Duration
	BreakingInterval time.Duration
	CrownSpec        string
	RunTimeout       time.Duration
	// CheckInterval is how often the persisted NextUpdate is polled.
	// Defaults to a tenth of GenerateInterval, between 1s and 1m.
	CheckInterval time.Duration
	Logger        *zap.Logger
}

// Scheduler re-runs topic generation on a fixed interval, checks for
// breaking news on a shorter one and optionally crowns a daily winner.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger
	cron   *cron.Cron
	now    func() time.Time

	mu    sync.Mutex
	state State

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates cfg and creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Generator == nil {
		return nil, errors.New("scheduler: generator is required")
	}
	if cfg.State == nil {
		return nil, errors.New("scheduler: state store is required")
	}
	if cfg.CrownSpec != "" {
		if _, err := cron.ParseStandard(cfg.CrownSpec); err != nil {
			return nil, fmt.Errorf("parse crown spec %q: %w", cfg.CrownSpec, err)
		}
	}
	if cfg.GenerateInterval <= 0 {
		cfg.GenerateInterval = 3 * time.Hour
	}
	if cfg.BreakingInterval <= 0 {
		cfg.BreakingInterval = 15 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = min(max(cfg.GenerateInterval/10, time.Second), time.Minute)
	}
	if cfg.Detector == nil {
		cfg.Detector = topic.NewBreakingDetector(nil, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, logger: cfg.Logger, now: time.Now}, nil
}

// Load refreshes the in-memory state from the state store.
func (s *Scheduler) Load(ctx context.Context) error {
	st, err := s.cfg.State.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = *st
	s.mu.Unlock()
	return nil
}

// Start loads state, registers the jobs and starts the cron runner. If the
// last update is older than the generation interval a run starts at once.
// Generation follows the persisted NextUpdate, so a restart or a manual run
// moves the schedule instead of resetting it to process start.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.IsUpdating {
		// Left over from a process that died mid-run.
		s.logger.Warn("clearing stale updating flag")
		s.state.IsUpdating = false
	}
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger.Sugar()})))

	s.cron.Schedule(cron.Every(s.cfg.CheckInterval), cron.FuncJob(func() {
		if s.Status(s.now()).Overdue {
			s.runInBackground("due")
		}
	}))

	if s.cfg.News != nil && s.cfg.Titles != nil {
		s.cron.Schedule(cron.Every(s.cfg.BreakingInterval), cron.FuncJob(func() {
			rctx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
			defer cancel()
			if _, err := s.CheckBreaking(rctx); err != nil {
				s.logger.Warn("breaking check failed", zap.Error(err))
			}
		}))
	}

	if s.cfg.CrownSpec != "" && s.cfg.Crowner != nil {
		if _, err := s.cron.AddFunc(s.cfg.CrownSpec, s.crownToday); err != nil {
			return fmt.Errorf("schedule crowning: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("generate_every", s.cfg.GenerateInterval),
		zap.Duration("check_every", s.cfg.CheckInterval),
		zap.Duration("breaking_every", s.cfg.BreakingInterval),
		zap.String("crown_spec", s.cfg.CrownSpec))

	if s.Status(s.now()).Overdue {
		s.runInBackground("startup")
	}
	return nil
}

// Stop halts the cron runner, cancels in-flight work and waits for it.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runInBackground(reason string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rctx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
		defer cancel()

		_, err := s.RunNow(rctx)
		switch {
		case errors.Is(err, ErrBusy):
			s.logger.Info("generation skipped, run in progress", zap.String("reason", reason))
		case err != nil:
			s.logger.Error("generation failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}

// RunNow runs one generation pass unless one is already in progress, in
// which case it returns ErrBusy and leaves the running pass alone.
func (s *Scheduler) RunNow(ctx context.Context) (*topic.Result, error) {
	if !s.begin(ctx) {
		return nil, ErrBusy
	}

	res, err := s.cfg.Generator.Run(ctx)
	s.finish(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate topics: %w", err)
	}

	s.logger.Info("generation finished",
		zap.Int("collected", res.Collected),
		zap.Int("stored", res.Stored),
		zap.Int("unsafe", res.Unsafe),
		zap.Bool("fallback", res.UsedFallback))
	return res, nil
}

func (s *Scheduler) begin(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsUpdating {
		return false
	}
	s.state.IsUpdating = true
	s.saveLocked(ctx)
	return true
}

// finish records the attempt whether or not it succeeded; a failed run is
// retried on the next cycle.
func (s *Scheduler) finish(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	next := now.Add(s.cfg.GenerateInterval)
	s.state.IsUpdating = false
	s.state.LastUpdate = &now
	s.state.NextUpdate = &next
	s.saveLocked(context.WithoutCancel(ctx))
}

func (s *Scheduler) saveLocked(ctx context.Context) {
	st := s.state
	if err := s.cfg.State.Save(ctx, &st); err != nil {
		s.logger.Warn("failed to save scheduler state", zap.Error(err))
	}
}

// CheckBreaking fetches a small news batch and, when an urgent headline is
// not already covered by a recent topic, runs generation out of cycle. It
// returns the breaking headlines.
func (s *Scheduler) CheckBreaking(ctx context.Context) ([]string, error) {
	if s.cfg.News == nil || s.cfg.Titles == nil {
		return nil, nil
	}

	now := s.now().UTC()
	s.mu.Lock()
	s.state.LastBreakingCheck = &now
	s.saveLocked(ctx)
	s.mu.Unlock()

	items, err := s.cfg.News.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", s.cfg.News.Name(), err)
	}
	existing, err := s.cfg.Titles.TopicTitles(ctx, now.Add(-titleWindow))
	if err != nil {
		return nil, err
	}

	breaking := s.cfg.Detector.Detect(source.Titles(items), existing)
	if len(breaking) == 0 {
		s.logger.Debug("no breaking news", zap.Int("headlines", len(items)))
		return nil, nil
	}
	s.logger.Info("breaking news detected",
		zap.Int("count", len(breaking)),
		zap.String("first", breaking[0]))

	res, err := s.RunNow(ctx)
	if errors.Is(err, ErrBusy) {
		s.logger.Info("breaking run skipped, generation in progress")
		return breaking, nil
	}
	if err != nil {
		return breaking, err
	}

	if s.cfg.Alerts.HasNotifiers() {
		if err := s.cfg.Alerts.Broadcast(ctx, alert.Breaking(breaking, res.Topics)); err != nil {
			s.logger.Warn("breaking announcement failed", zap.Error(err))
		}
	}
	return breaking, nil
}

func (s *Scheduler) crownToday() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
	defer cancel()

	_, err := s.cfg.Crowner.Crown(ctx, s.now())
	switch {
	case errors.Is(err, crown.ErrNoTopics):
		s.logger.Info("nothing to crown")
	case err != nil:
		s.logger.Error("scheduled crowning failed", zap.Error(err))
	}
}

// Status is a snapshot of the schedule for display.
type Status struct {
	LastUpdate        *time.Time `json:"last_update,omitempty"`
	NextUpdate        *time.Time `json:"next_update,omitempty"`
	LastBreakingCheck *time.Time `json:"last_breaking_check,omitempty"`
	IsUpdating        bool       `json:"is_updating"`
	Overdue           bool       `json:"overdue"`
	Label             string     `json:"label"`
}

// Status reports the schedule as of now. A schedule whose last update is
// older than the generation interval is overdue and labelled
// "Updating soon...".
func (s *Scheduler) Status(now time.Time) Status {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	out := Status{
		LastUpdate:        st.LastUpdate,
		NextUpdate:        st.NextUpdate,
		LastBreakingCheck: st.LastBreakingCheck,
		IsUpdating:        st.IsUpdating,
	}

	if st.IsUpdating {
		out.Label = "Updating now..."
		return out
	}
	if st.LastUpdate == nil || now.Sub(*st.LastUpdate) > s.cfg.GenerateInterval {
		out.Overdue = true
		out.Label = "Updating soon..."
		return out
	}

	next := st.LastUpdate.Add(s.cfg.GenerateInterval)
	if st.NextUpdate != nil {
		next = *st.NextUpdate
	}
	remaining := next.Sub(now)
	if remaining <= 0 {
		out.Overdue = true
		out.Label = "Updating soon..."
		return out
	}
	out.Label = FormatRemaining(remaining)
	return out
}

// FormatRemaining renders d as "2h 14m", "14m" or "<1m".
func FormatRemaining(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return "<1m"
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
