package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the environment-driven application configuration. The Twitter
// client pair drives the OAuth 2.0 PKCE login flow; the consumer pair is the
// OAuth 1.0a application identity used for media-capable posting.
type Config struct {
	Env       string `env:"ENV,default=dev"`
	Addr      string `env:"ADDR,default=:8080"`
	BaseURL   string `env:"BASE_URL,default=http://localhost:8080"`
	SecretKey string `env:"SECRET_KEY,default=dev_secret_key_change_me"`

	TwitterClientID       string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret   string `env:"TWITTER_CLIENT_SECRET"`
	TwitterConsumerKey    string `env:"TWITTER_CONSUMER_KEY"`
	TwitterConsumerSecret string `env:"TWITTER_CONSUMER_SECRET"`

	BlueskyPDSURL string `env:"BLUESKY_PDS_URL,default=https://bsky.social"`

	PostTimeout time.Duration `env:"POST_TIMEOUT,default=60s"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	config := Config{}
	if err := envconfig.Process(context.Background(), &config); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

// IsDevelopment reports whether the app runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "dev" || c.Env == "development"
}
