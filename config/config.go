package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Browser   BrowserConfig   `koanf:"browser"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
	Redis     RedisConfig     `koanf:"redis"`
	Quota     QuotaConfig     `koanf:"quota"`
	History   HistoryConfig   `koanf:"history"`
	Batch     BatchConfig     `koanf:"batch"`
	Download  DownloadConfig  `koanf:"download"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Mode            string        `koanf:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// BrowserConfig controls the shared headless engine and the per-request
// browsing contexts it hands out.
type BrowserConfig struct {
	Headless   bool   `koanf:"headless"`
	NoSandbox  bool   `koanf:"no_sandbox"`
	BrowserBin string `koanf:"browser_bin"`
	Proxy      string `koanf:"proxy"`

	UserAgent         string  `koanf:"user_agent" validate:"required"`
	AcceptLanguage    string  `koanf:"accept_language"`
	ViewportWidth     int     `koanf:"viewport_width" validate:"gt=0"`
	ViewportHeight    int     `koanf:"viewport_height" validate:"gt=0"`
	DeviceScaleFactor float64 `koanf:"device_scale_factor" validate:"gt=0"`
	Locale            string  `koanf:"locale" validate:"required"`
	Timezone          string  `koanf:"timezone" validate:"required"`

	// MaxSessions bounds concurrent browsing contexts. 0 means unbounded.
	MaxSessions int `koanf:"max_sessions" validate:"min=0"`

	// LivenessTimeout bounds the engine health probe done on every acquire.
	LivenessTimeout time.Duration `koanf:"liveness_timeout" validate:"gt=0"`
}

// PipelineConfig controls the video resolution pipeline and the resource
// classifier thresholds.
type PipelineConfig struct {
	NavigationTimeout  time.Duration `koanf:"navigation_timeout" validate:"gt=0"`
	ContainerSelector  string        `koanf:"container_selector" validate:"required"`
	ContainerTimeout   time.Duration `koanf:"container_timeout" validate:"gt=0"`
	ScrollY            int           `koanf:"scroll_y" validate:"min=0"`
	ScrollSettle       time.Duration `koanf:"scroll_settle" validate:"min=0"`
	DurationRetryDelay time.Duration `koanf:"duration_retry_delay" validate:"min=0"`

	// RequestTimeout is the ceiling on a whole extraction.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	MinVideoBytes  int64    `koanf:"min_video_bytes" validate:"min=0"`
	VideoMarkers   []string `koanf:"video_markers"`
	MediaCDN       string   `koanf:"media_cdn" validate:"required"`
	PosterMarkers  []string `koanf:"poster_markers" validate:"min=1"`
	TrackerMarkers []string `koanf:"tracker_markers"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `koanf:"enabled"`
	APIKeys []string `koanf:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"rps" validate:"gt=0"`
	Burst             int     `koanf:"burst" validate:"gt=0"`
}

// CacheConfig controls the AdResult cache.
type CacheConfig struct {
	MaxEntries int           `koanf:"max_entries" validate:"gt=0"`
	TTL        time.Duration `koanf:"ttl" validate:"min=0"` // 0 disables caching
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// RedisConfig selects the Redis backend for quotas and history.
// An empty Host keeps everything in memory.
type RedisConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Password        string        `koanf:"password"`
	DB              int           `koanf:"db" validate:"min=0"`
	MaxRetries      int           `koanf:"max_retries" validate:"min=0"`
	MinRetryBackoff time.Duration `koanf:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `koanf:"max_retry_backoff"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QuotaConfig controls the daily usage limits.
type QuotaConfig struct {
	GuestDaily int    `koanf:"guest_daily" validate:"gt=0"`
	UserDaily  int    `koanf:"user_daily" validate:"gt=0"`
	KeyPrefix  string `koanf:"key_prefix" validate:"required"`
}

// HistoryConfig controls the per-identity recency list.
type HistoryConfig struct {
	MaxItems  int           `koanf:"max_items" validate:"gt=0"`
	KeyPrefix string        `koanf:"key_prefix" validate:"required"`
	TTL       time.Duration `koanf:"ttl" validate:"gt=0"`
}

// BatchConfig controls batch jobs.
type BatchConfig struct {
	MaxURLs       int           `koanf:"max_urls" validate:"gt=0"`
	Concurrency   int           `koanf:"concurrency" validate:"gt=0"`
	JobTTL        time.Duration `koanf:"job_ttl" validate:"gt=0"`
	WebhookSecret string        `koanf:"webhook_secret"`
}

// DownloadConfig controls the download proxy.
type DownloadConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// AllowedHosts lists host suffixes the proxy may fetch from.
	// Empty allows any host.
	AllowedHosts []string `koanf:"allowed_hosts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AcceptLanguage:    "en-US,en;q=0.9",
			ViewportWidth:     1280,
			ViewportHeight:    800,
			DeviceScaleFactor: 2,
			Locale:            "en-US",
			Timezone:          "America/Los_Angeles",
			MaxSessions:       8,
			LivenessTimeout:   3 * time.Second,
		},
		Pipeline: PipelineConfig{
			NavigationTimeout:  30 * time.Second,
			ContainerSelector:  `div[role="main"], div[aria-label="Ad details"]`,
			ContainerTimeout:   10 * time.Second,
			ScrollY:            500,
			ScrollSettle:       500 * time.Millisecond,
			DurationRetryDelay: time.Second,
			RequestTimeout:     90 * time.Second,
			MinVideoBytes:      50000,
			VideoMarkers:       []string{".mp4"},
			MediaCDN:           "fbcdn",
			PosterMarkers:      []string{"s1080x1080", "s720x720"},
			TrackerMarkers: []string{
				"google-analytics",
				"doubleclick",
				"facebook.com/tr",
				"connect.facebook.net",
			},
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Cache: CacheConfig{
			MaxEntries: 500,
			TTL:        10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Port:            6379,
			MaxRetries:      3,
			MinRetryBackoff: 50 * time.Millisecond,
			MaxRetryBackoff: 2 * time.Second,
		},
		Quota: QuotaConfig{
			GuestDaily: 5,
			UserDaily:  50,
			KeyPrefix:  "fb_ads_usage_",
		},
		History: HistoryConfig{
			MaxItems:  6,
			KeyPrefix: "fb_ads_saver_history",
			TTL:       30 * 24 * time.Hour,
		},
		Batch: BatchConfig{
			MaxURLs:     50,
			Concurrency: 1,
			JobTTL:      time.Hour,
		},
		Download: DownloadConfig{
			Timeout:      5 * time.Minute,
			AllowedHosts: []string{"fbcdn.net", "facebook.com", "via.placeholder.com"},
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		// Slices decode element-wise over existing values; clear the ones
		// the file sets so a shorter list replaces the default.
		for key, s := range map[string]*[]string{
			"pipeline.video_markers":   &cfg.Pipeline.VideoMarkers,
			"pipeline.poster_markers":  &cfg.Pipeline.PosterMarkers,
			"pipeline.tracker_markers": &cfg.Pipeline.TrackerMarkers,
			"auth.api_keys":            &cfg.Auth.APIKeys,
			"download.allowed_hosts":   &cfg.Download.AllowedHosts,
		} {
			if k.Exists(key) {
				*s = nil
			}
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg. Unset variables keep the
// current value.
func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = envOr("ADSAVER_HOST", s.Host)
	s.Port = envIntOr("ADSAVER_PORT", s.Port)
	s.Mode = envOr("ADSAVER_MODE", s.Mode)
	s.ShutdownTimeout = envDurationOr("ADSAVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	b := &cfg.Browser
	b.Headless = envBoolOr("ADSAVER_HEADLESS", b.Headless)
	b.NoSandbox = envBoolOr("ADSAVER_NO_SANDBOX", b.NoSandbox)
	b.BrowserBin = envOr("ADSAVER_BROWSER_BIN", b.BrowserBin)
	b.Proxy = envOr("ADSAVER_PROXY", b.Proxy)
	b.UserAgent = envOr("ADSAVER_USER_AGENT", b.UserAgent)
	b.MaxSessions = envIntOr("ADSAVER_MAX_SESSIONS", b.MaxSessions)
	b.LivenessTimeout = envDurationOr("ADSAVER_LIVENESS_TIMEOUT", b.LivenessTimeout)

	p := &cfg.Pipeline
	p.NavigationTimeout = envDurationOr("ADSAVER_NAV_TIMEOUT", p.NavigationTimeout)
	p.ContainerTimeout = envDurationOr("ADSAVER_CONTAINER_TIMEOUT", p.ContainerTimeout)
	p.RequestTimeout = envDurationOr("ADSAVER_REQUEST_TIMEOUT", p.RequestTimeout)
	p.MinVideoBytes = int64(envIntOr("ADSAVER_MIN_VIDEO_BYTES", int(p.MinVideoBytes)))

	cfg.Auth.Enabled = envBoolOr("ADSAVER_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.APIKeys = envSliceOr("ADSAVER_API_KEYS", cfg.Auth.APIKeys)

	cfg.RateLimit.RequestsPerSecond = envFloatOr("ADSAVER_RATE_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = envIntOr("ADSAVER_RATE_BURST", cfg.RateLimit.Burst)

	cfg.Cache.MaxEntries = envIntOr("ADSAVER_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.TTL = envDurationOr("ADSAVER_CACHE_TTL", cfg.Cache.TTL)

	cfg.Log.Level = envOr("ADSAVER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("ADSAVER_LOG_FORMAT", cfg.Log.Format)

	r := &cfg.Redis
	r.Host = envOr("REDIS_HOST", r.Host)
	r.Port = envIntOr("REDIS_PORT", r.Port)
	r.Password = envOr("REDIS_PASSWORD", r.Password)
	r.DB = envIntOr("REDIS_DB", r.DB)

	cfg.Quota.GuestDaily = envIntOr("ADSAVER_QUOTA_GUEST", cfg.Quota.GuestDaily)
	cfg.Quota.UserDaily = envIntOr("ADSAVER_QUOTA_USER", cfg.Quota.UserDaily)

	cfg.Batch.MaxURLs = envIntOr("ADSAVER_BATCH_MAX_URLS", cfg.Batch.MaxURLs)
	cfg.Batch.Concurrency = envIntOr("ADSAVER_BATCH_CONCURRENCY", cfg.Batch.Concurrency)
	cfg.Batch.WebhookSecret = envOr("ADSAVER_WEBHOOK_SECRET", cfg.Batch.WebhookSecret)

	cfg.Download.Timeout = envDurationOr("ADSAVER_DOWNLOAD_TIMEOUT", cfg.Download.Timeout)
	cfg.Download.AllowedHosts = envSliceOr("ADSAVER_DOWNLOAD_HOSTS", cfg.Download.AllowedHosts)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
