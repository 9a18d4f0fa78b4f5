// Package app wires the presence agent: config, clients, the engine loop and
// the local UI API.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-presence/internal/config"
	apphttp "github.com/yungbote/neurobridge-presence/internal/http"
	"github.com/yungbote/neurobridge-presence/internal/observability"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/presence/unload"
	"github.com/yungbote/neurobridge-presence/internal/realtime"
)

const serviceName = "presence-agent"

type App struct {
	Log     *logger.Logger
	Config  *config.Config
	Engine  *engine.Engine
	Clients Clients
	Metrics *observability.Metrics

	loop     *loop.Loop
	unload   *unload.Registry
	handlers Handlers
	server   *apphttp.Server
	otelStop func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("identity", cfg.Identity)

	otelStop := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Identity:    cfg.Identity,
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	l := loop.New(log)
	registry := unload.New()
	e, err := engine.New(cfg.EngineConfig(), engine.Deps{
		Sched:    l,
		API:      clients.API,
		Shared:   clients.Shared,
		Unloader: registry,
		Log:      log,
	})
	if err != nil {
		_ = clients.closeShared()
		log.Sync()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.NewMetrics()
	}
	handlers := wireHandlers(log, e, realtime.NewSSEHub(log), metrics)
	srv := apphttp.NewServer(wireRouterConfig(log, handlers, metrics, cfg.HTTP.CORSOrigins), apphttp.ServerOptions{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout.Duration,
	})

	return &App{
		Log:      log,
		Config:   cfg,
		Engine:   e,
		Clients:  clients,
		Metrics:  metrics,
		loop:     l,
		unload:   registry,
		handlers: handlers,
		server:   srv,
		otelStop: otelStop,
	}, nil
}

// Run starts the session and serves the local API until ctx is done, then
// releases the server session and tears everything down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Engine == nil {
		return errors.New("app not initialized")
	}

	// The loop outlives ctx so shutdown work can still be scheduled on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	if err := a.Engine.WatchTabs(ctx); err != nil {
		return fmt.Errorf("watch tabs: %w", err)
	}
	stopBridge, err := a.handlers.Realtime.Bridge(ctx)
	if err != nil {
		return fmt.Errorf("bridge realtime: %w", err)
	}
	if err := a.Engine.Do(ctx, a.Engine.Start); err != nil {
		stopBridge()
		return fmt.Errorf("start session: %w", err)
	}
	a.Log.Info("presence agent started", "addr", a.Config.HTTP.Addr, "server", a.Config.Server.BaseURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-loopDone:
			loopDone <- err
			return fmt.Errorf("engine loop exited: %w", err)
		}
	})
	runErr := g.Wait()

	stopBridge()
	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Session.DeleteTimeout.Duration+time.Second)
	defer cancel()

	// Unload first so the live session is deleted, then drop local state
	// without a second delete.
	if err := a.Engine.Do(ctx, func() {
		a.unload.Fire()
		a.Engine.Close()
	}); err != nil {
		a.Log.Warn("engine shutdown", "error", err)
	}
	if err := a.Clients.API.Drain(ctx); err != nil {
		a.Log.Warn("session delete did not finish", "error", err)
	}
	if err := a.Clients.closeShared(); err != nil {
		a.Log.Warn("close tabs backend", "error", err)
	}
	if err := a.otelStop(ctx); err != nil {
		a.Log.Warn("otel shutdown", "error", err)
	}
	a.Log.Info("presence agent stopped")
	a.Log.Sync()
}
