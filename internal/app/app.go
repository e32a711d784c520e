// Package app wires configuration, the remote client, the session
// registry, and both transports into one runnable gateway.
package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/config"
	"github.com/vovakirdan/drawbridge/internal/core"
	"github.com/vovakirdan/drawbridge/internal/discord"
	"github.com/vovakirdan/drawbridge/internal/ratelimit"
	"github.com/vovakirdan/drawbridge/internal/registry"
	transporthttp "github.com/vovakirdan/drawbridge/internal/transport/http"
	"github.com/vovakirdan/drawbridge/internal/transport/tcp"
)

// Limiter buckets idle at full capacity for this long before the
// sweeper drops them.
const limiterIdleAge = 2 * time.Hour

// App wires together core and transport layers.
type App struct {
	cfg    config.Config
	log    *zerolog.Logger
	reg    *registry.Registry
	ircSrv *tcp.Server
	webSrv *stdhttp.Server

	loginLimit *ratelimit.Registry
	nickLimit  *ratelimit.Registry
}

// binder creates one core session per accepted connection and keeps the
// registry in step with connection lifetime.
type binder struct {
	cfg        config.Config
	client     discord.Client
	reg        *registry.Registry
	loginLimit *ratelimit.Registry
	nickLimit  *ratelimit.Registry
	log        *zerolog.Logger
}

func (b *binder) Bind(id string, transport core.Transport) tcp.Session {
	sessionCfg := core.SessionConfig{
		ServerName:    b.cfg.ServerName,
		MOTD:          b.cfg.MOTD,
		RemoteTimeout: b.cfg.RemoteTimeout,
	}
	s := core.NewSession(id, transport, b.client, b.loginLimit, b.nickLimit, b.reg, sessionCfg, *b.log)
	b.reg.Add(s)
	return s
}

func (b *binder) Unbind(id string) {
	b.reg.Remove(id)
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	client := discord.NewRESTClient(cfg.APIBaseURL, cfg.GatewayURL, nil, *logger)
	reg := registry.New(*logger)

	loginLimit := ratelimit.NewRegistry(float64(cfg.LoginLimit.Tokens), cfg.LoginLimit.FillRate())
	nickLimit := ratelimit.NewRegistry(float64(cfg.NickLimit.Tokens), cfg.NickLimit.FillRate())

	b := &binder{
		cfg:        *cfg,
		client:     client,
		reg:        reg,
		loginLimit: loginLimit,
		nickLimit:  nickLimit,
		log:        logger,
	}

	return &App{
		cfg:        *cfg,
		log:        logger,
		reg:        reg,
		ircSrv:     tcp.NewServer(cfg.ListenAddr, b, *logger),
		webSrv:     transporthttp.NewServer(cfg.StatusAddr, reg, *logger),
		loginLimit: loginLimit,
		nickLimit:  nickLimit,
	}, nil
}

// Run starts both servers and blocks until context cancellation or a
// fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.ircSrv.Listen(); err != nil {
		return err
	}

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go a.loginLimit.Sweep(10*time.Minute, limiterIdleAge, sweepStop)
	go a.nickLimit.Sweep(10*time.Minute, limiterIdleAge, sweepStop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.ircSrv.Serve()
	}()
	go func() {
		a.log.Info().Str("addr", a.cfg.StatusAddr).Msg("status server listening")
		if err := a.webSrv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		a.shutdown()
		return nil
	}
}

// shutdown stops both servers and closes every live session.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.webSrv.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("status server shutdown")
	}
	a.reg.CloseAll()
	if err := a.ircSrv.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("tcp server shutdown")
	}
}
