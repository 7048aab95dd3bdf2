package domovoy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlos-sarmiento/domovoy/deptrack"
	"github.com/carlos-sarmiento/domovoy/scheduler"
	"github.com/carlos-sarmiento/domovoy/statecache"
)

// Runner assembles and supervises the full runtime: state cache, callback
// core, app engine, hot-reload tracker, and status API. Components start
// in dependency order and stop in reverse.
type Runner struct {
	cfg    Config
	logger Logger

	Cache   *statecache.Cache
	Sched   *scheduler.Scheduler
	Engine  *Engine
	Tracker *deptrack.Tracker

	httpSrv *http.Server
}

// LoaderSource is a source that can also drive the reload tracker.
type LoaderSource interface {
	AppSource
	deptrack.Loader
}

// NewRunner wires the runtime from its configuration. conn may be nil for
// runs without a platform link (the cache then only sees app-driven
// state). handler, when non-nil, is served on cfg.ListenAddr.
func NewRunner(cfg Config, logger Logger, conn Connector, source LoaderSource) *Runner {
	cache := statecache.New(logger)

	sched := scheduler.New(cache, logger,
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval.Std()),
		scheduler.WithWorkerCount(cfg.Scheduler.Workers),
		scheduler.WithQueueSize(cfg.Scheduler.QueueSize),
		scheduler.WithLocation(scheduler.Location{
			Latitude:  cfg.Location.Latitude,
			Longitude: cfg.Location.Longitude,
			Elevation: cfg.Location.Elevation,
		}),
	)

	engine := NewEngine(cache, sched, conn, source, logger)

	tracker := deptrack.New(source, engine, logger,
		deptrack.WithWatchRoot(cfg.AppsPath),
		deptrack.WithDebounce(cfg.Reload.Debounce.Std()),
	)

	return &Runner{
		cfg:     cfg,
		logger:  logger,
		Cache:   cache,
		Sched:   sched,
		Engine:  engine,
		Tracker: tracker,
	}
}

// Start brings the runtime up: scheduler workers, connector streams, then
// the tracker's bootstrap pass that loads every unit and registers its
// apps. The status API, when handler is non-nil, serves in the
// background.
func (r *Runner) Start(ctx context.Context, handler http.Handler) error {
	if err := r.Sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	if err := r.Engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	if err := r.Tracker.Start(ctx); err != nil {
		return fmt.Errorf("starting reload tracker: %w", err)
	}

	if handler != nil && r.cfg.ListenAddr != "" {
		r.httpSrv = &http.Server{Addr: r.cfg.ListenAddr, Handler: handler}
		go func() {
			r.logger.Info("status api listening", "addr", r.cfg.ListenAddr)
			if err := r.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("status api", "error", err)
			}
		}()
	}
	return nil
}

// Stop tears the runtime down in reverse order: API, tracker, apps,
// connector streams, scheduler.
func (r *Runner) Stop(ctx context.Context) {
	if r.httpSrv != nil {
		shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := r.httpSrv.Shutdown(shutCtx); err != nil {
			r.logger.Error("status api shutdown", "error", err)
		}
		cancel()
	}

	if err := r.Tracker.Stop(ctx); err != nil {
		r.logger.Error("stopping reload tracker", "error", err)
	}
	r.Engine.StopAllApps(ctx)
	r.Engine.Stop()
	if err := r.Sched.Stop(ctx); err != nil {
		r.logger.Error("stopping scheduler", "error", err)
	}
	r.logger.Info("runtime stopped")
}
