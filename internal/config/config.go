package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ConsumerKey       string `env:"TWITTER_CONSUMER_KEY"`
	ConsumerSecret    string `env:"TWITTER_CONSUMER_SECRET"`
	AccessToken       string `env:"TWITTER_ACCESS_TOKEN"`
	AccessTokenSecret string `env:"TWITTER_ACCESS_TOKEN_SECRET"`
	TextCaptchaKey    string `env:"TEXTCAPTCHA_KEY"`
	ModerationUserID  int64  `env:"MODERATION_USER_ID"`
	HomepageGistID    string `env:"HOMEPAGE_GIST_ID"`
	StreamURL         string `env:"STREAM_URL"`

	RateLimit         int           `env:"RATE_LIMIT" default:"4"`
	RateWindow        time.Duration `env:"RATE_WINDOW" default:"240s"`
	MaxExceeds        int           `env:"MAX_EXCEEDS" default:"5"`
	ExceedWindow      time.Duration `env:"EXCEED_WINDOW" default:"24h"`
	WaitBeforeFirstDM time.Duration `env:"WAIT_BEFORE_FIRST_DM" default:"5s"`
	DeleteDelay       time.Duration `env:"DELETE_DELAY" default:"60s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TWITTER_CONSUMER_KEY":        cfg.ConsumerKey,
		"TWITTER_CONSUMER_SECRET":     cfg.ConsumerSecret,
		"TWITTER_ACCESS_TOKEN":        cfg.AccessToken,
		"TWITTER_ACCESS_TOKEN_SECRET": cfg.AccessTokenSecret,
		"TEXTCAPTCHA_KEY":             cfg.TextCaptchaKey,
		"STREAM_URL":                  cfg.StreamURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.ModerationUserID == 0 {
		return fmt.Errorf("MODERATION_USER_ID is required")
	}

	if cfg.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", cfg.RateLimit)
	}
	if cfg.RateWindow <= 0 {
		return fmt.Errorf("RATE_WINDOW must be positive, got %s", cfg.RateWindow)
	}
	if cfg.MaxExceeds <= 0 {
		return fmt.Errorf("MAX_EXCEEDS must be positive, got %d", cfg.MaxExceeds)
	}
	if cfg.ExceedWindow < cfg.RateWindow {
		return fmt.Errorf("EXCEED_WINDOW must not be shorter than RATE_WINDOW")
	}

	return nil
}
