// Package config loads bioverify settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cashcore/bioverify/internal/batch"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/cashcore/bioverify/internal/webhooks"
	"github.com/spf13/viper"
)

// Config is the resolved configuration.
type Config struct {
	DatabaseURL     string
	RedisURL        string
	ChannelCacheTTL time.Duration
	// ChannelEvictInterval paces eviction from the in-memory channel cache.
	ChannelEvictInterval time.Duration
	// StrictCodes makes batch and per-user runs require each record's
	// assigned code instead of any well-formed code.
	StrictCodes bool

	Fetch  bio.Config
	Batch  batch.Config
	Runner batch.RunnerConfig

	API      APIConfig
	Metrics  MetricsConfig
	Webhooks []webhooks.Endpoint
	Log      LogConfig
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Port         int
	CORSOrigins  []string
	RateLimitRPS int
	JWTSecret    string
	TokenTTL     time.Duration
}

// MetricsConfig holds the standalone metrics listener address.
type MetricsConfig struct {
	Addr string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string
	Development bool
}

// New returns a viper instance with defaults, env binding and the config
// search path set up. file, when non-empty, is read instead of searching.
func New(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("bioverify")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := bio.DefaultConfig()
	v.SetDefault("database.url", "")
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel_ttl", "24h")
	v.SetDefault("redis.channel_evict_interval", "10m")
	v.SetDefault("verify.strict_codes", false)
	v.SetDefault("fetch.timeout", d.Timeout.String())
	v.SetDefault("fetch.user_agent", d.UserAgent)
	v.SetDefault("platforms.instagram_url", d.InstagramURL)
	v.SetDefault("platforms.tiktok_url", d.TikTokURL)
	v.SetDefault("platforms.youtube_url", d.YouTubeURL)
	v.SetDefault("platforms.youtube_api_url", d.YouTubeAPIURL)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.pace", "1s")
	v.SetDefault("batch.stale_after", "24h")
	v.SetDefault("runner.interval", "60m")
	v.SetDefault("runner.cooldown", "5m")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.rate_limit_rps", 10)
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.token_ttl", "24h")
	v.SetDefault("metrics.addr", ":9102")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	return v
}

// Load reads the config file, if any, and resolves all settings. A missing
// file in the search path is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		ChannelCacheTTL: v.GetDuration("redis.channel_ttl"),

		ChannelEvictInterval: v.GetDuration("redis.channel_evict_interval"),
		StrictCodes:          v.GetBool("verify.strict_codes"),
		Fetch: bio.Config{
			Timeout:       v.GetDuration("fetch.timeout"),
			UserAgent:     v.GetString("fetch.user_agent"),
			InstagramURL:  v.GetString("platforms.instagram_url"),
			TikTokURL:     v.GetString("platforms.tiktok_url"),
			YouTubeURL:    v.GetString("platforms.youtube_url"),
			YouTubeAPIURL: v.GetString("platforms.youtube_api_url"),
			YouTubeAPIKey: v.GetString("youtube.api_key"),
		},
		Batch: batch.Config{
			Size:       v.GetInt("batch.size"),
			Pace:       v.GetDuration("batch.pace"),
			StaleAfter: v.GetDuration("batch.stale_after"),
		},
		Runner: batch.RunnerConfig{
			BatchSize: v.GetInt("batch.size"),
			Interval:  v.GetDuration("runner.interval"),
			Cooldown:  v.GetDuration("runner.cooldown"),
		},
		API: APIConfig{
			Port:         v.GetInt("api.port"),
			CORSOrigins:  v.GetStringSlice("api.cors_origins"),
			RateLimitRPS: v.GetInt("api.rate_limit_rps"),
			JWTSecret:    v.GetString("api.jwt_secret"),
			TokenTTL:     v.GetDuration("api.token_ttl"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("metrics.addr")},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	if err := v.UnmarshalKey("webhooks.endpoints", &cfg.Webhooks); err != nil {
		return nil, fmt.Errorf("parse webhooks.endpoints: %w", err)
	}

	if cfg.Batch.Size <= 0 {
		return nil, fmt.Errorf("batch.size must be positive, got %d", cfg.Batch.Size)
	}
	if cfg.Batch.Pace < 0 {
		return nil, fmt.Errorf("batch.pace must not be negative")
	}
	return cfg, nil
}
