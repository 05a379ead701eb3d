// Package service wires the pipeline: stores, bus, writer, router,
// analytics engine, control plane, WebSocket gateway, and metrics
// endpoint, with ordered startup and reverse-ordered shutdown.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/vibstreams/analytics"
	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/control"
	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/gateway/ws"
	"github.com/c360/vibstreams/ingress"
	"github.com/c360/vibstreams/metric"
	"github.com/c360/vibstreams/natsclient"
	"github.com/c360/vibstreams/recording"
	"github.com/c360/vibstreams/router"
	"github.com/c360/vibstreams/subscription"
)

// Service owns every pipeline component. Construction wires the graph;
// Start brings it up bus-first so frames can flow as soon as the
// router has a snapshot, and Stop tears it down in reverse so nothing
// downstream loses work still in flight upstream.
type Service struct {
	cfg    Config
	logger *slog.Logger

	registry      *metric.MetricsRegistry
	metricsServer *metric.Server

	bus        *natsclient.Client
	config     *configstore.Store
	recordings *recording.Store
	writer     *recording.Writer
	subs       *subscription.Manager
	engine     *analytics.Engine
	router     *router.Router
	adapter    *ingress.Adapter
	plane      *control.Plane
	gateway    *ws.Server

	started bool
}

// New builds the full component graph from configuration. Nothing is
// started and no connection is attempted; the database is opened so
// construction fails fast on an unusable path.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{cfg: cfg, logger: logger}

	s.registry = metric.NewMetricsRegistry()
	metrics := s.registry.CoreMetrics()
	if cfg.Metrics.Port > 0 {
		s.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, s.registry)
	}

	db, err := configstore.OpenDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.config = configstore.NewStore(db)
	s.recordings, err = recording.NewStore(db, metrics)
	if err != nil {
		return nil, err
	}

	busOpts := []natsclient.ClientOption{
		natsclient.WithReconnectCounter(metrics.BusReconnects),
		// after a reconnect the tag subscriptions and the KV mirror
		// may be stale; a rebuild re-pushes both
		natsclient.WithReconnectCallback(func() { s.onBusReconnect() }),
	}
	if cfg.NATS.Name != "" {
		busOpts = append(busOpts, natsclient.WithName(cfg.NATS.Name))
	}
	if cfg.NATS.Token != "" {
		busOpts = append(busOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	s.bus, err = natsclient.NewClient(cfg.NATS.URL, busOpts...)
	if err != nil {
		return nil, err
	}

	s.writer = recording.NewWriter(recording.WriterDeps{
		Store:     s.recordings,
		Metrics:   metrics,
		Logger:    logger,
		QueueSize: cfg.Writer.QueueSize,
	})

	s.subs = subscription.NewManager(subscription.ManagerDeps{
		Metrics: metrics,
		Logger:  logger,
	})

	s.engine, err = analytics.NewEngine(analytics.EngineDeps{
		Settings: s.config,
		Emitter:  analytics.NewNATSEmitter(s.bus),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s.router = router.NewRouter(router.RouterDeps{
		Persister: s.writer,
		Deliverer: s.subs,
		Metrics:   metrics,
		Logger:    logger,
	})

	s.adapter, err = ingress.NewAdapter(ingress.AdapterDeps{
		Bus:           s.bus,
		Handler:       s.router,
		Metrics:       metrics,
		Logger:        logger,
		QueueCapacity: cfg.Ingress.QueueSize,
		DrainTimeout:  time.Duration(cfg.Ingress.DrainTimeout),
	})
	if err != nil {
		return nil, err
	}

	s.plane, err = control.NewPlane(control.Deps{
		Config:     s.config,
		Recordings: s.recordings,
		Writer:     s.writer,
		Subs:       s.subs,
		Engine:     s.engine,
		Router:     s.router,
		Adapter:    s.adapter,
		Bus:        s.bus,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Gateway.Addr != "" {
		s.gateway, err = ws.NewServer(ws.ServerDeps{
			Bus:    s.bus,
			Logger: logger,
			Addr:   cfg.Gateway.Addr,
			Path:   cfg.Gateway.Path,
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Control exposes the control plane for embedding callers.
func (s *Service) Control() *control.Plane { return s.plane }

// Start brings the pipeline up. The bus connects in the background
// (RetryOnFailedConnect), so startup succeeds with the broker down and
// ingress begins once it comes up.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Service", "Start", "check state")
	}

	if err := s.bus.Connect(ctx); err != nil {
		return err
	}
	if err := s.writer.Start(ctx); err != nil {
		return err
	}
	if err := s.router.Start(ctx); err != nil {
		return err
	}
	if err := s.adapter.Start(ctx); err != nil {
		return err
	}
	if err := s.plane.Start(ctx); err != nil {
		return err
	}
	if s.gateway != nil {
		if err := s.gateway.Start(ctx); err != nil {
			return err
		}
	}
	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.Start(); err != nil {
				s.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	s.started = true
	s.logger.Info("service started",
		"nats_url", s.cfg.NATS.URL, "database", s.cfg.Database.Path)
	return nil
}

// Stop tears the pipeline down in reverse start order: stop accepting
// (gateway, adapter), drain the middle (router, sinks), land queued
// appends (writer), then drop the bus. The first error is returned but
// shutdown always runs to the end.
func (s *Service) Stop(timeout time.Duration) error {
	if !s.started {
		return nil
	}
	s.started = false

	var firstErr error
	collect := func(err error) {
		if err != nil {
			s.logger.Warn("shutdown step failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.metricsServer != nil {
		collect(s.metricsServer.Stop())
	}
	if s.gateway != nil {
		collect(s.gateway.Stop(timeout))
	}
	collect(s.adapter.Stop())
	collect(s.router.Stop(timeout))
	collect(s.subs.Stop(timeout))
	collect(s.writer.Stop(timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	collect(s.bus.Close(ctx))

	s.logger.Info("service stopped")
	return firstErr
}

// onBusReconnect re-pushes tag subscriptions and the KV mirror after
// the connection comes back. Runs on the NATS callback goroutine.
func (s *Service) onBusReconnect() {
	if s.plane == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.plane.Rebuild(ctx); err != nil {
		s.logger.Error("post-reconnect rebuild failed", "error", err)
	}
}
