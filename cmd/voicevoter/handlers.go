package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/config"
	"github.com/elonfeng/voicevoter/internal/logging"
	"github.com/elonfeng/voicevoter/internal/scheduler"
	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/alert"
	"github.com/elonfeng/voicevoter/pkg/auth"
	"github.com/elonfeng/voicevoter/pkg/crown"
	"github.com/elonfeng/voicevoter/pkg/events"
	"github.com/elonfeng/voicevoter/pkg/server"
	"github.com/elonfeng/voicevoter/pkg/source"
	"github.com/elonfeng/voicevoter/pkg/speech"
	"github.com/elonfeng/voicevoter/pkg/topic"
	"github.com/elonfeng/voicevoter/pkg/vote"
)

// app holds the long-lived dependencies every command shares.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *store.SQLiteStore
	redis  *redis.Client
	bus    events.Bus
	alerts *alert.Manager
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, alerts: buildAlertManager(cfg)}
	a.redis = buildRedis(cfg, logger)
	if a.redis != nil {
		a.bus = events.NewRedis(a.redis, cfg.Redis.Channel, logger)
	} else {
		a.bus = events.NewLocal(logger)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.bus.Close(); err != nil {
		a.logger.Warn("close event bus", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// buildRedis returns a connected client, or nil when Redis is disabled or
// unreachable so callers fall back to in-process state.
func buildRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process events", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return client
}

// buildSources returns the generation sources in collection order. The
// headline providers form one fallback chain.
func buildSources(cfg *config.Config, filter *source.Filter, logger *zap.Logger) []source.Source {
	sc := cfg.Sources
	timeout := sc.ParseTimeout()
	var sources []source.Source

	if sc.Reddit.Enabled {
		sources = append(sources, source.NewReddit(sc.Reddit.Subreddits, sc.Limit, timeout, filter))
	}
	if sc.HackerNews.Enabled {
		sources = append(sources, source.NewHackerNews(sc.HackerNews.Limit, timeout, filter))
	}

	var headlines []source.Source
	if sc.NewsAPI.Enabled && sc.NewsAPI.APIKey != "" {
		headlines = append(headlines, source.NewNewsAPI(sc.NewsAPI.BaseURL, sc.NewsAPI.APIKey, sc.NewsAPI.Country, sc.Limit, timeout))
	}
	if sc.RSS.Enabled {
		headlines = append(headlines, source.NewRSS(rssFeeds(sc.RSS.Feeds), sc.Limit, timeout, filter, logger))
	}
	if sc.Scrape.Enabled {
		headlines = append(headlines, source.NewScrape(sc.Scrape.URL, sc.Scrape.Selector, sc.Scrape.Proxies, sc.Limit, timeout, filter))
	}
	if len(headlines) > 0 {
		sources = append(sources, source.NewChain(source.SourceNews, logger, headlines...))
	}

	return sources
}

// buildNewsBatch returns the small headline source used for breaking news
// checks, or nil when no headline provider is configured.
func buildNewsBatch(cfg *config.Config, filter *source.Filter, logger *zap.Logger) source.Source {
	sc := cfg.Sources
	timeout := sc.ParseTimeout()
	size := cfg.Breaking.BatchSize

	var batch []source.Source
	if sc.NewsAPI.Enabled && sc.NewsAPI.APIKey != "" {
		batch = append(batch, source.NewNewsAPI(sc.NewsAPI.BaseURL, sc.NewsAPI.APIKey, sc.NewsAPI.Country, sc.Limit, timeout).WithLimit(size))
	}
	if sc.RSS.Enabled {
		batch = append(batch, source.NewRSS(rssFeeds(sc.RSS.Feeds), size, timeout, filter, logger))
	}
	if len(batch) == 0 {
		return nil
	}
	return source.NewChain(source.SourceNews, logger, batch...)
}

func rssFeeds(items []config.FeedItem) []source.RSSFeed {
	feeds := make([]source.RSSFeed, len(items))
	for i, f := range items {
		feeds[i] = source.RSSFeed{Name: f.Name, URL: f.URL}
	}
	return feeds
}

// buildRewriter picks the AI rewriter when configured and usable, else the
// heuristic classifier.
func buildRewriter(cfg *config.Config, classifier *topic.Heuristic, logger *zap.Logger) topic.Rewriter {
	heuristic := topic.NewHeuristicRewriter(classifier)
	if !cfg.AI.Enabled || (cfg.AI.APIKey == "" && cfg.AI.Provider != "ollama") {
		return heuristic
	}

	ai, err := topic.NewAIRewriter(topic.AIOptions{
		Provider:  cfg.AI.Provider,
		Model:     cfg.AI.Model,
		APIKey:    cfg.AI.APIKey,
		BaseURL:   cfg.AI.BaseURL,
		Timeout:   cfg.AI.ParseTimeout(),
		MaxBatch:  cfg.AI.MaxBatch,
		Heuristic: classifier,
	}, heuristic, logger)
	if err != nil {
		logger.Warn("ai rewriter unavailable, using heuristic classifier", zap.Error(err))
		return heuristic
	}
	logger.Info("ai rewriter enabled", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))
	return ai
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func (a *app) classifier() *topic.Heuristic {
	return topic.NewHeuristic(a.cfg.Classifier.ExtraBanned)
}

func (a *app) crowner() *crown.Crowner {
	return crown.New(a.db, a.bus, a.alerts, a.logger)
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	cfg := a.cfg
	filter := source.NewFilter(cfg.Classifier.ExtraBanned)
	classifier := a.classifier()

	gen := topic.NewGenerator(topic.GeneratorConfig{
		Sources:    buildSources(cfg, filter, a.logger),
		Rewriter:   buildRewriter(cfg, classifier, a.logger),
		Store:      a.db,
		Publisher:  a.bus,
		Delay:      cfg.Schedule.ParseSourceDelay(),
		StaleAfter: cfg.Schedule.ParseStaleAfter(),
		Logger:     a.logger,
	})

	var state scheduler.StateStore = scheduler.NewStoreState(a.db, "scheduler")
	if a.redis != nil {
		state = scheduler.NewRedisState(a.redis, "")
	}

	schedCfg := scheduler.Config{
		Generator:        gen,
		Titles:           a.db,
		Detector:         topic.NewBreakingDetector(cfg.Breaking.Keywords, cfg.Breaking.SimilarityThreshold),
		Crowner:          a.crowner(),
		State:            state,
		Alerts:           a.alerts,
		GenerateInterval: cfg.Schedule.ParseGenerateInterval(),
		BreakingInterval: cfg.Schedule.ParseBreakingInterval(),
		CrownSpec:        cfg.Schedule.CrownSpec,
		Logger:           a.logger,
	}
	if news := buildNewsBatch(cfg, filter, a.logger); news != nil {
		schedCfg.News = news
	}
	return scheduler.New(schedCfg)
}

func (a *app) server(sched *scheduler.Scheduler, port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	sp := a.cfg.Speech
	return server.New(server.Config{
		Store:     a.db,
		Votes:     vote.NewService(a.db, a.bus, a.logger),
		Scheduler: sched,
		Crowner:   a.crowner(),
		Speech:    speech.NewClient(sp.BaseURL, sp.APIKey, sp.VoiceID, sp.ModelID),
		Auth:      auth.NewVerifier(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer),
		Moderator: a.classifier(),
		Bus:       a.bus,
		Port:      port,
		Logger:    a.logger,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runGenerate(jsonOutput, breakingOnly bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if err := sched.Load(context.Background()); err != nil {
		return fmt.Errorf("load scheduler state: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if breakingOnly {
		headlines, err := sched.CheckBreaking(ctx)
		if err != nil {
			return err
		}
		if len(headlines) == 0 {
			fmt.Println("no breaking news")
			return nil
		}
		for _, h := range headlines {
			fmt.Println("breaking:", h)
		}
		return nil
	}

	res, err := sched.RunNow(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Fprintf(os.Stderr, "collected %d, stored %d, unsafe %d, duplicates %d, deactivated %d\n",
		res.Collected, res.Stored, res.Unsafe, res.Duplicates, res.Deactivated)
	if res.UsedFallback {
		fmt.Fprintln(os.Stderr, "every source was empty, stored fallback topics")
	}
	return printTopics(res.Topics)
}

func runTopics(jsonOutput bool, category string, limit int, all bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topics, err := a.db.ListTopics(context.Background(), store.TopicListOpts{
		Category:   category,
		ActiveOnly: !all,
		Limit:      limit,
	})
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	if jsonOutput {
		return printJSON(topics)
	}
	if len(topics) == 0 {
		fmt.Println("no topics found (try generating some first: voicevoter generate)")
		return nil
	}
	return printTopics(topics)
}

func printTopics(topics []store.TrendingTopic) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VOTES\tSCORE\tCATEGORY\tQUESTION\tID")
	for _, t := range topics {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
			t.VoteCount, t.TrendingScore, t.Category, t.QuestionText, t.ID)
	}
	return w.Flush()
}

func runCurrentQuestion(jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	q, err := a.db.CurrentQuestion(ctx)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("no current question (promote a topic: voicevoter question promote <topic-id>)")
		return nil
	}
	if err != nil {
		return err
	}
	tally, err := a.db.VoteTally(ctx, q.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"question": q, "tally": tally})
	}
	fmt.Printf("%s\n  id: %s\n  yes: %d  no: %d  (%d%% yes)\n", q.Text, q.ID, tally.Yes, tally.No, tally.YesPercent())
	return nil
}

func runPromote(topicID string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	q, err := a.db.CreateQuestionFromTopic(ctx, topicID)
	if err != nil && q == nil {
		return fmt.Errorf("promote topic %s: %w", topicID, err)
	}
	if err != nil {
		a.logger.Warn("topic promoted but not refreshed", zap.Error(err))
	}
	if err := a.bus.Publish(ctx, events.Event{Type: events.QuestionCreated, QuestionID: q.ID}); err != nil {
		a.logger.Warn("publish question.created failed", zap.Error(err))
	}
	fmt.Printf("current question: %s (%s)\n", q.Text, q.ID)
	return nil
}

func runPending() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	questions, err := a.db.ListQuestions(context.Background(), store.QuestionListOpts{Status: store.ModerationPending})
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		fmt.Println("nothing waiting for moderation")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMITTED\tQUESTION\tID")
	for _, q := range questions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", q.CreatedAt.Format(time.RFC3339), q.Text, q.ID)
	}
	return w.Flush()
}

func runModerate(id, status string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.db.SetModerationStatus(ctx, id, store.ModerationStatus(status)); err != nil {
		return err
	}
	if store.ModerationStatus(status) == store.ModerationApproved {
		if err := a.bus.Publish(ctx, events.Event{Type: events.QuestionCreated, QuestionID: id}); err != nil {
			a.logger.Warn("publish question.created failed", zap.Error(err))
		}
	}
	fmt.Printf("question %s is now %s\n", id, status)
	return nil
}

func cliVoter(user, session string) store.Voter {
	if user != "" {
		return store.Voter{UserID: user}
	}
	if session == "" {
		session = auth.NewSessionID()
		fmt.Fprintf(os.Stderr, "voting with new session %s\n", session)
	}
	return store.Voter{SessionID: session}
}

func runQuestionVote(questionID, choice, user, session string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	votes := vote.NewService(a.db, a.bus, a.logger)
	res, err := votes.CastQuestionVote(context.Background(), questionID, cliVoter(user, session), store.Choice(choice))
	if err != nil {
		return err
	}
	fmt.Printf("vote %s: yes %d, no %d\n", res.State, res.Tally.Yes, res.Tally.No)
	return nil
}

func runTopicVote(topicID, user, session string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	votes := vote.NewService(a.db, a.bus, a.logger)
	res, err := votes.CastTopicVote(context.Background(), topicID, cliVoter(user, session))
	if err != nil {
		return err
	}
	fmt.Printf("vote %s: topic now has %d votes\n", res.State, res.VoteCount)
	return nil
}

func runCrown(date string, speak bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	day := time.Now()
	if date != "" {
		day, err = time.Parse(crown.DateLayout, date)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", date, err)
		}
	}

	ctx := context.Background()
	res, err := a.crowner().Crown(ctx, day)
	if err != nil {
		return err
	}
	fmt.Printf("crowned %s for %s with %d votes\n%s\n",
		res.Topic.RawTopic, res.Crown.CrownedDate, res.Crown.VoteCount, res.Crown.VoiceScript)

	if !speak {
		return nil
	}
	sp := a.cfg.Speech
	audio, err := speech.NewClient(sp.BaseURL, sp.APIKey, sp.VoiceID, sp.ModelID).Synthesize(ctx, res.Crown.VoiceScript)
	if errors.Is(err, speech.ErrUseBrowser) {
		fmt.Fprintln(os.Stderr, "text-to-speech unavailable, read the script aloud instead")
		return nil
	}
	if err != nil {
		return fmt.Errorf("synthesize voice script: %w", err)
	}
	name := fmt.Sprintf("crown-%s.mp3", res.Crown.CrownedDate)
	if err := os.WriteFile(name, audio.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", name)
	return nil
}

func runCrownList(limit int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	crowns, err := a.db.ListCrowns(context.Background(), limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tVOTES\tTOPIC ID")
	for _, c := range crowns {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.CrownedDate, c.VoteCount, c.TrendingTopicID)
	}
	return w.Flush()
}

func runStatus(jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if err := sched.Load(context.Background()); err != nil {
		return fmt.Errorf("load scheduler state: %w", err)
	}

	st := sched.Status(time.Now())
	if jsonOutput {
		return printJSON(st)
	}

	fmt.Printf("next update: %s\n", st.Label)
	if st.LastUpdate != nil {
		fmt.Printf("last update: %s\n", st.LastUpdate.Local().Format(time.RFC1123))
	}
	if st.LastBreakingCheck != nil {
		fmt.Printf("last breaking check: %s\n", st.LastBreakingCheck.Local().Format(time.RFC1123))
	}
	return nil
}

func runServe(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if err := sched.Load(context.Background()); err != nil {
		return fmt.Errorf("load scheduler state: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.server(sched, port).Run(ctx)
}

func runDaemon(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	err = a.server(sched, port).Run(ctx)
	a.logger.Info("shutting down")
	return err
}
