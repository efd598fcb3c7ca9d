package eidolon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/eidolon/internal/broadcast"
	"github.com/Schera-ole/eidolon/internal/config"
	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	"github.com/Schera-ole/eidolon/internal/exporter"
	"github.com/Schera-ole/eidolon/internal/gcwatch"
	"github.com/Schera-ole/eidolon/internal/handler"
	models "github.com/Schera-ole/eidolon/internal/model"
	"github.com/Schera-ole/eidolon/internal/repository"
	"github.com/Schera-ole/eidolon/internal/sampler"
	"github.com/Schera-ole/eidolon/internal/service"
)

type (
	// Config holds every tunable of the agent.
	Config = config.AgentConfig

	// Snapshot is one point-in-time measurement of the runtime.
	Snapshot = models.MetricsSnapshot

	// GcEvent records one completed garbage collection cycle.
	GcEvent = models.GcEvent
)

var (
	ErrSnapshotUnavailable = internalerrors.ErrSnapshotUnavailable
	ErrAgentRunning        = internalerrors.ErrAgentRunning
	ErrAgentStopped        = internalerrors.ErrAgentStopped
	ErrInvalidConfig       = internalerrors.ErrInvalidConfig
)

const readHeaderTimeout = 10 * time.Second

// DefaultConfig returns the default agent configuration.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// Option customizes an Agent.
type Option func(*Agent)

// WithLogger sets the logger. The agent is silent by default.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithoutServer keeps the agent from listening on its own. The host mounts Handler instead.
func WithoutServer() Option {
	return func(a *Agent) { a.ownServer = false }
}

// WithoutGcWatcher disables GC event collection. Events can still be fed through RecordGcEvent.
func WithoutGcWatcher() Option {
	return func(a *Agent) { a.watchGc = false }
}

// Agent samples the runtime and serves what it measured.
type Agent struct {
	config    *Config
	logger    *zap.SugaredLogger
	ownServer bool
	watchGc   bool

	service   *service.MetricsService
	registry  *broadcast.Registry
	scheduler *broadcast.Scheduler
	watcher   *gcwatch.Watcher
	handler   http.Handler

	mu       sync.Mutex
	running  bool
	stopped  bool
	server   *http.Server
	listener net.Listener
	group    *errgroup.Group
	stop     chan struct{}
}

// New builds an agent for a copy of cfg with its context path normalized. Nothing runs until Start.
func New(cfg *Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	normalized := *cfg
	normalized.ContextPath = config.NormalizeContextPath(cfg.ContextPath)
	cfg = &normalized
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		config:    cfg,
		logger:    zap.NewNop().Sugar(),
		ownServer: true,
		watchGc:   true,
	}
	for _, opt := range opts {
		opt(a)
	}

	s := sampler.New(sampler.RuntimeSources(), sampler.Options{
		CollectStringTable:        cfg.CollectStringTable,
		IncludeMemoryPools:        cfg.IncludeMemoryPools,
		IncludeThreadNamePrefixes: cfg.IncludeThreadNamePrefixes,
	}, a.logger.Named("sampler"))

	a.service = service.NewMetricsService(repository.NewMemStorage(), s, cfg, a.logger.Named("service"))
	a.registry = broadcast.NewRegistry(a.service, broadcast.OptionsFromConfig(cfg), a.logger.Named("broadcast"))
	a.scheduler = broadcast.NewScheduler(a.service, a.registry, cfg.Interval, a.logger.Named("scheduler"))
	if a.watchGc {
		a.watcher = gcwatch.New(a.service.RecordGcEvent, a.logger.Named("gcwatch"), cfg.IncludeGcNames)
	}

	collector := exporter.NewCollector(a.service, a.logger.Named("exporter"))
	metrics := exporter.Handler(exporter.NewRegistry(collector), a.logger.Named("exporter"))
	a.handler = handler.Router(a.service, a.registry, metrics, cfg, a.logger.Named("http"))
	return a, nil
}

// Start arms the GC watcher, launches the sampling loop and, unless WithoutServer was given,
// starts listening. ctx bounds the lifetime of the sampling loop. A disabled agent does nothing.
func (a *Agent) Start(ctx context.Context) error {
	if !a.config.Enabled {
		a.logger.Info("agent disabled")
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAgentRunning
	}
	if a.stopped {
		return ErrAgentStopped
	}

	var listener net.Listener
	if a.ownServer {
		var err error
		listener, err = net.Listen("tcp", a.config.Address())
		if err != nil {
			return fmt.Errorf("listen on %s: %w", a.config.Address(), err)
		}
	}

	if a.watcher != nil {
		a.watcher.Start()
	}
	if err := a.scheduler.Start(ctx); err != nil {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if listener != nil {
			listener.Close()
		}
		return err
	}

	a.stop = make(chan struct{})
	group, groupCtx := errgroup.WithContext(context.Background())
	a.group = group
	stop := a.stop
	a.group.Go(func() error {
		select {
		case <-stop:
		case <-groupCtx.Done():
		}
		return nil
	})
	if listener != nil {
		a.listener = listener
		a.server = &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		server := a.server
		a.group.Go(func() error {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		})
		a.logger.Infow("agent listening", "address", listener.Addr().String(), "contextPath", a.config.ContextPath)
	}

	a.running = true
	a.logger.Infow("agent started", "interval", a.config.Interval, "websocket", a.config.WebsocketEnabled)
	return nil
}

// Stop disarms the GC watcher, stops the sampling loop, disconnects every subscriber and
// shuts the server down. ctx bounds the wait. A stopped agent cannot be restarted.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrAgentStopped
	}
	a.running = false
	a.stopped = true
	server, group := a.server, a.group
	close(a.stop)
	a.mu.Unlock()

	if a.watcher != nil {
		a.watcher.Stop()
	}

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := a.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close service: %w", err))
	}
	a.logger.Info("agent stopped")
	return errors.Join(errs...)
}

// Wait blocks until the agent is stopped or its server fails.
func (a *Agent) Wait() error {
	a.mu.Lock()
	group := a.group
	a.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Addr is the address the agent listens on, nil when it owns no server or is not running.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil || !a.running {
		return nil
	}
	return a.listener.Addr()
}

// Handler serves the agent routes under Config.ContextPath.
func (a *Agent) Handler() http.Handler {
	return a.handler
}

// Latest returns the most recently published snapshot, ErrSnapshotUnavailable before the first.
func (a *Agent) Latest(ctx context.Context) (*Snapshot, error) {
	return a.service.Latest(ctx)
}

// RecordGcEvent adds e to the GC event window.
func (a *Agent) RecordGcEvent(e GcEvent) {
	a.service.RecordGcEvent(e)
}

// Subscribers is the number of connected stream subscribers.
func (a *Agent) Subscribers() int {
	return a.registry.Size()
}
