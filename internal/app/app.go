package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-session/internal/auth"
	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/config"
	"github.com/gokatarajesh/quiz-session/internal/console"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/leaderboard"
	"github.com/gokatarajesh/quiz-session/internal/logging"
	"github.com/gokatarajesh/quiz-session/internal/loop"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/server"
	"github.com/gokatarajesh/quiz-session/internal/session"
	"github.com/gokatarajesh/quiz-session/pkg/http/ws"
)

const shutdownTimeout = 5 * time.Second

// Application aggregates the session, its transports and the console.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	loop    *loop.Loop
	api     *channel.API
	session *session.Orchestrator
	console *console.Driver
	metrics *metrics.Metrics
	redis   *redis.Client
	http    *http.Server

	mu     sync.Mutex
	stream *channel.Stream
}

// New builds the client. Console output goes to out.
func New(ctx context.Context, cfg *config.App, out io.Writer) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.Log.Level).With().
		Str("session_id", uuid.NewString()).
		Logger()
	logger.Info().Str("server", cfg.Server.URL).Msg("starting session client")

	self, err := auth.ResolveUsername(cfg.Identity.Username, cfg.Identity.AccessToken, time.Now())
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	api, err := channel.NewAPI(channel.APIOptions{
		BaseURL:     cfg.Server.URL,
		Timeout:     cfg.Server.HTTPTimeout,
		AccessToken: cfg.Identity.AccessToken,
		Metrics:     m,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &Application{
		cfg:     cfg,
		logger:  logger,
		loop:    loop.New(ctx, logger),
		api:     api,
		metrics: m,
	}

	var cache leaderboard.Cache
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		cache = leaderboard.NewRedisCache(a.redis, "", cfg.Redis.CacheTTL)
	}
	board := leaderboard.NewService(api, cache, leaderboard.ServiceOptions{Self: self}, logger)

	a.session = session.New(api, session.Options{
		Self:            self,
		Dispatcher:      a.loop,
		Clock:           clockwork.NewRealClock(),
		Emit:            delta.Sink(a.render),
		Metrics:         m,
		AutoReadyDelay:  cfg.Runtime.RankedAutoReadyDelay,
		PollInterval:    cfg.Runtime.MatchPollInterval,
		StaleAfter:      cfg.Runtime.MatchStaleAfter,
		RedirectSeconds: cfg.Runtime.RedirectSeconds,
		LeaveTimeout:    cfg.Runtime.LeaveTimeout,
		DedupeWindow:    cfg.Runtime.DedupeWindow,
	}, logger)
	a.console = console.New(a.session, out, console.Options{Board: board, Connect: a.connect}, logger)

	if cfg.Metrics.Addr != "" {
		a.http = server.NewHTTPServer(cfg.Metrics.Addr, reg, a.attached, logger)
	}
	return a, nil
}

func (a *Application) render(d delta.Delta) {
	a.console.Render(d)
}

func (a *Application) attached(ctx context.Context) (bool, error) {
	snap, err := a.session.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.Attached, nil
}

// connect replaces the room stream with a fresh one and attaches it.
func (a *Application) connect(ctx context.Context) error {
	url := a.api.StreamURL(a.cfg.Server.WSPath)
	log := logging.FromContext(ctx)
	log.Debug().Str("url", url).Msg("dialing room stream")
	stream, err := channel.DialStream(ctx, url, ws.DialOptions{
		Header:           a.api.AuthHeader(),
		Jar:              a.api.Jar(),
		HandshakeTimeout: a.cfg.Server.HTTPTimeout,
	}, a.metrics, a.logger)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.stream
	a.stream = stream
	a.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	if err := a.session.Attach(ctx, stream); err != nil {
		a.mu.Lock()
		if a.stream == stream {
			a.stream = nil
		}
		a.mu.Unlock()
		stream.Close()
		return err
	}
	go a.serve(stream)
	return nil
}

func (a *Application) serve(stream *channel.Stream) {
	stream.Run(a.session.Deliver)

	a.mu.Lock()
	current := a.stream == stream
	if current {
		a.stream = nil
	}
	a.mu.Unlock()
	if !current {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.session.Detach(ctx); err != nil {
		a.logger.Debug().Err(err).Msg("detach after stream end")
	}
}

// Run drives the console until it quits, the input ends or a signal arrives.
func (a *Application) Run(ctx context.Context, in io.Reader) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, a.logger)

	if err := a.connect(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("no room stream yet; join or create a room")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.console.Run(gctx, in)
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.http != nil {
		g.Go(func() error {
			a.logger.Info().Str("addr", a.http.Addr).Msg("metrics server listening")
			if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.http.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	a.shutdown()
	return runErr
}

func (a *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.session.Close(ctx); err != nil {
		a.logger.Error().Err(err).Msg("session close error")
	}
	a.mu.Lock()
	if a.stream != nil {
		a.stream.Close()
		a.stream = nil
	}
	a.mu.Unlock()
	a.loop.Close()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
	a.logger.Info().Msg("shutdown complete")
}
