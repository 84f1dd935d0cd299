package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Sources    SourcesConfig    `yaml:"sources"`
	Classifier ClassifierConfig `yaml:"classifier"`
	AI         AIConfig         `yaml:"ai"`
	Breaking   BreakingConfig   `yaml:"breaking"`
	Speech     SpeechConfig     `yaml:"speech"`
	Auth       AuthConfig       `yaml:"auth"`
	Redis      RedisConfig      `yaml:"redis"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json or console
}

// ScheduleConfig configures generation and breaking-news intervals.
type ScheduleConfig struct {
	GenerateInterval string `yaml:"generate_interval"`
	BreakingInterval string `yaml:"breaking_interval"`
	SourceDelay      string `yaml:"source_delay"`
	CrownSpec        string `yaml:"crown_spec"` // cron expression, empty = manual crowning only
	StaleAfter       string `yaml:"stale_after"`
}

// ParseGenerateInterval returns the generation interval as time.Duration.
func (s ScheduleConfig) ParseGenerateInterval() time.Duration {
	return parseDuration(s.GenerateInterval, 3*time.Hour)
}

// ParseBreakingInterval returns the breaking-news check interval.
func (s ScheduleConfig) ParseBreakingInterval() time.Duration {
	return parseDuration(s.BreakingInterval, 15*time.Minute)
}

// ParseSourceDelay returns the pause inserted between source calls.
func (s ScheduleConfig) ParseSourceDelay() time.Duration {
	return parseDuration(s.SourceDelay, time.Second)
}

// ParseStaleAfter returns the age after which zero-vote topics are deactivated.
func (s ScheduleConfig) ParseStaleAfter() time.Duration {
	return parseDuration(s.StaleAfter, 24*time.Hour)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SourcesConfig holds configuration for all topic sources.
type SourcesConfig struct {
	Timeout    string           `yaml:"timeout"`
	Limit      int              `yaml:"limit"`
	Reddit     RedditConfig     `yaml:"reddit"`
	NewsAPI    NewsAPIConfig    `yaml:"newsapi"`
	RSS        RSSConfig        `yaml:"rss"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	HackerNews HackerNewsConfig `yaml:"hackernews"`
}

// ParseTimeout returns the per-call network timeout.
func (s SourcesConfig) ParseTimeout() time.Duration {
	return parseDuration(s.Timeout, 10*time.Second)
}

// RedditConfig for the public Reddit JSON listing.
type RedditConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Subreddits []string `yaml:"subreddits"`
}

// NewsAPIConfig for the news headlines API.
type NewsAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Country string `yaml:"country"`
}

// RSSConfig for news aggregator feeds.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ScrapeConfig for the HTML target reached through CORS relays.
type ScrapeConfig struct {
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url"`
	Selector string   `yaml:"selector"`
	Proxies  []string `yaml:"proxies"`
}

// HackerNewsConfig for Hacker News top stories.
type HackerNewsConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// ClassifierConfig tunes the heuristic classifier.
type ClassifierConfig struct {
	ExtraBanned []string `yaml:"extra_banned"`
}

// AIConfig configures the optional LLM topic rewriter.
type AIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "openai", "anthropic" or "ollama"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
	MaxBatch int    `yaml:"max_batch"`
}

// ParseTimeout returns the LLM request timeout.
func (a AIConfig) ParseTimeout() time.Duration {
	return parseDuration(a.Timeout, 60*time.Second)
}

// BreakingConfig tunes breaking-news detection.
type BreakingConfig struct {
	Keywords            []string `yaml:"keywords"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	BatchSize           int      `yaml:"batch_size"`
}

// SpeechConfig configures the text-to-speech endpoint.
type SpeechConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// RedisConfig enables Redis-backed events and scheduler state.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// AlertsConfig configures announcement destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook announcements.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook announcements.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook announcements.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./voicevoter.db"},
		Log:      LogConfig{Level: "info", Encoding: "json"},
		Schedule: ScheduleConfig{
			GenerateInterval: "3h",
			BreakingInterval: "15m",
			SourceDelay:      "1s",
			StaleAfter:       "24h",
		},
		Sources: SourcesConfig{
			Timeout: "10s",
			Limit:   20,
			Reddit: RedditConfig{
				Enabled:    true,
				Subreddits: []string{"news", "worldnews", "technology"},
			},
			NewsAPI: NewsAPIConfig{
				BaseURL: "https://newsapi.org",
				Country: "us",
			},
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedItem{
					{Name: "Google News", URL: "https://news.google.com/rss?hl=en-US&gl=US&ceid=US:en"},
					{Name: "BBC World", URL: "https://feeds.bbci.co.uk/news/world/rss.xml"},
				},
			},
			Scrape: ScrapeConfig{
				URL:      "https://trends.google.com/trending?geo=US",
				Selector: "div.mZ3RIc, h3, .title",
				Proxies: []string{
					"https://api.allorigins.win/raw?url=",
					"https://corsproxy.io/?",
					"https://api.codetabs.com/v1/proxy?quest=",
				},
			},
			HackerNews: HackerNewsConfig{Limit: 30},
		},
		AI: AIConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
			MaxBatch: 20,
		},
		Breaking: BreakingConfig{
			Keywords: []string{
				"breaking", "urgent", "just in", "developing", "alert",
				"emergency", "crisis", "live updates",
			},
			SimilarityThreshold: 0.7,
			BatchSize:           5,
		},
		Speech: SpeechConfig{
			BaseURL: "https://api.elevenlabs.io",
			VoiceID: "21m00Tcm4TlvDq8ikWAM",
			ModelID: "eleven_monolingual_v1",
		},
		Auth:   AuthConfig{Issuer: "voicevoter"},
		Redis:  RedisConfig{Addr: "localhost:6379", Channel: "voicevoter:events"},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, a .env file if present, and
// applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEVOTER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_ENCODING"); v != "" {
		cfg.Log.Encoding = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		cfg.Sources.NewsAPI.APIKey = v
		cfg.Sources.NewsAPI.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.APIKey = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "anthropic"
		if strings.HasPrefix(cfg.AI.Model, "gpt-") {
			cfg.AI.Model = ""
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && !cfg.AI.Enabled {
		cfg.AI.BaseURL = v
		cfg.AI.Enabled = true
		cfg.AI.Provider = "ollama"
		cfg.AI.Model = ""
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" {
		cfg.Speech.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
