package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds the client's runtime configuration.
type App struct {
	Name string `env:"APP_NAME" envDefault:"quiz-session"`
	Env  string `env:"APP_ENV" envDefault:"development"`

	Server   Server
	Identity Identity
	Runtime  Runtime
	Redis    Redis
	Metrics  Metrics
	Log      Log
}

// Server locates the quiz authority.
type Server struct {
	URL         string        `env:"SERVER_URL" envDefault:"http://127.0.0.1:8000"`
	WSPath      string        `env:"WS_PATH" envDefault:"/ws/room"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// Identity names the participant. Username falls back to the access token.
type Identity struct {
	Username    string `env:"PLAYER_USERNAME" envDefault:""`
	AccessToken string `env:"ACCESS_TOKEN" envDefault:""`
}

// Runtime groups session timings.
type Runtime struct {
	MatchPollInterval    time.Duration `env:"MATCH_POLL_INTERVAL" envDefault:"2s"`
	MatchStaleAfter      time.Duration `env:"MATCH_STALE_AFTER" envDefault:"30s"`
	RankedAutoReadyDelay time.Duration `env:"RANKED_AUTO_READY_DELAY" envDefault:"1s"`
	RedirectSeconds      int           `env:"GAME_OVER_REDIRECT_SECONDS" envDefault:"100"`
	LeaveTimeout         time.Duration `env:"LEAVE_TIMEOUT" envDefault:"3s"`
	DedupeWindow         int           `env:"EVENT_DEDUPE_WINDOW" envDefault:"256"`
}

// Redis backs the shared leaderboard cache. Empty Addr disables it.
type Redis struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:""`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"LEADERBOARD_CACHE_TTL" envDefault:"30s"`
}

// Metrics exposes Prometheus collectors. Empty Addr disables the listener.
type Metrics struct {
	Addr string `env:"METRICS_ADDR" envDefault:""`
}

type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the session cannot run with.
func (c *App) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid SERVER_URL %q", c.Server.URL)
	}

	var errs []error
	positive := map[string]time.Duration{
		"HTTP_TIMEOUT":        c.Server.HTTPTimeout,
		"MATCH_POLL_INTERVAL": c.Runtime.MatchPollInterval,
		"MATCH_STALE_AFTER":   c.Runtime.MatchStaleAfter,
		"LEAVE_TIMEOUT":       c.Runtime.LeaveTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Runtime.RankedAutoReadyDelay < 0 {
		errs = append(errs, errors.New("RANKED_AUTO_READY_DELAY must not be negative"))
	}
	if c.Runtime.RedirectSeconds <= 0 {
		errs = append(errs, errors.New("GAME_OVER_REDIRECT_SECONDS must be positive"))
	}
	if c.Runtime.DedupeWindow <= 0 {
		errs = append(errs, errors.New("EVENT_DEDUPE_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *App) IsProduction() bool {
	return c.Env == "production"
}
