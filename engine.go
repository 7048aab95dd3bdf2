package domovoy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/carlos-sarmiento/domovoy/scheduler"
	"github.com/carlos-sarmiento/domovoy/statecache"
)

// Engine owns the registry of app instances: unique name to record, one
// lifecycle state per record, and the wiring of every app to the scheduler
// core, the state cache, and the platform connector. All lifecycle
// operations for one app run inside a fault boundary so an unhandled
// failure in one app never reaches the engine's control loop or another
// app.
type Engine struct {
	cache  *statecache.Cache
	sched  *scheduler.Scheduler
	conn   Connector
	source AppSource
	logger Logger

	mu      sync.RWMutex
	records map[string]*AppRecord
	order   []string

	*subject

	pumpCancel context.CancelFunc
	pumpWG     sync.WaitGroup
}

// NewEngine creates an engine wired to its collaborators. The source is
// consulted for fresh app factories on reload; it may be nil when reload
// is driven purely through explicit Register calls.
func NewEngine(cache *statecache.Cache, sched *scheduler.Scheduler, conn Connector, source AppSource, logger Logger) *Engine {
	return &Engine{
		cache:   cache,
		sched:   sched,
		conn:    conn,
		source:  source,
		logger:  logger,
		records: make(map[string]*AppRecord),
		subject: newSubject(logger),
	}
}

// Register creates an app record under reg.Name, constructs the app with
// its injected capabilities, and drives it through initialization. It
// fails with ErrDuplicateAppName while a non-terminated record holds the
// name. A failing Initialize leaves the record in StatusFailed with none
// of its partially registered callbacks alive, and returns an
// *InitializationError.
func (e *Engine) Register(ctx context.Context, reg AppRegistration) error {
	if reg.Factory == nil {
		return fmt.Errorf("registering app %q: %w", reg.Name, ErrNilFactory)
	}

	e.mu.Lock()
	record, exists := e.records[reg.Name]
	if exists && record.status != StatusTerminated {
		e.mu.Unlock()
		return fmt.Errorf("registering app %q: %w", reg.Name, ErrDuplicateAppName)
	}
	if !exists {
		record = &AppRecord{Name: reg.Name}
		e.records[reg.Name] = record
		e.order = append(e.order, reg.Name)
	}
	// The name-to-record mapping keeps its identity across re-registration
	// and reload; only the instance is fresh.
	record.UnitID = reg.UnitID
	record.Config = reg.Config
	record.factory = reg.Factory
	record.status = StatusCreated
	record.runtime = &Runtime{
		Name:      reg.Name,
		Config:    reg.Config,
		Callbacks: e.sched.Owner(reg.Name),
		State:     e.cache,
		Conn:      e.conn,
		Log:       NewAppLogger(e.logger, reg.Name),
	}
	e.mu.Unlock()

	e.logger.Info("registering app", "app", reg.Name, "unit", reg.UnitID)
	e.NotifyObservers(ctx, NewCloudEvent(EventTypeAppRegistered, eventSource, map[string]any{"app": reg.Name}))

	return e.initialize(ctx, record)
}

// initialize drives a freshly built record from created to running, or to
// failed if its Initialize errors or panics.
func (e *Engine) initialize(ctx context.Context, record *AppRecord) error {
	e.mu.Lock()
	record.status = StatusInitializing
	factory := record.factory
	runtime := record.runtime
	e.mu.Unlock()

	// Construction runs inside the fault boundary too: a panicking factory
	// fails this one app, never the registry.
	var app App
	err := e.guard(record.Name, func() error {
		app = factory(runtime)
		return nil
	})
	if err == nil {
		e.mu.Lock()
		record.app = app
		e.mu.Unlock()

		e.logger.Debug("calling initialize", "app", record.Name)
		err = e.guard(record.Name, func() error { return app.Initialize(ctx) })
	}
	if err != nil {
		// Cancel whatever the app managed to register before failing; no
		// callback may outlive the instance that created it.
		cancelled := e.sched.CancelOwned(record.Name)

		e.mu.Lock()
		record.status = StatusFailed
		e.mu.Unlock()

		initErr := &InitializationError{App: record.Name, Err: err}
		e.logger.Error("app failed to initialize", "app", record.Name, "cancelledCallbacks", cancelled, "error", err)
		e.NotifyObservers(ctx, NewCloudEvent(EventTypeAppFailed, eventSource,
			map[string]any{"app": record.Name, "error": err.Error()}))
		return initErr
	}

	e.mu.Lock()
	record.status = StatusRunning
	e.mu.Unlock()

	e.logger.Info("app running", "app", record.Name)
	e.NotifyObservers(ctx, NewCloudEvent(EventTypeAppRunning, eventSource, map[string]any{"app": record.Name}))
	return nil
}

// Terminate finalizes a running or failed app: its callbacks are cancelled
// first so no new dispatch is scheduled, then Finalize runs best-effort,
// then the record reaches StatusTerminated. The record stays visible to
// status queries and its name becomes available for registration again.
func (e *Engine) Terminate(ctx context.Context, name string) error {
	e.mu.Lock()
	record, ok := e.records[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("terminating app %q: %w", name, ErrAppNotFound)
	}
	if record.status != StatusRunning && record.status != StatusFailed {
		status := record.status
		e.mu.Unlock()
		return fmt.Errorf("terminating app %q in status %s: %w", name, status, ErrAppNotRunning)
	}
	record.status = StatusFinalizing
	app := record.app
	e.mu.Unlock()

	cancelled := e.sched.CancelOwned(name)
	e.logger.Info("terminating app", "app", name, "cancelledCallbacks", cancelled)

	if err := e.guard(name, func() error { return app.Finalize(ctx) }); err != nil {
		e.logger.Error("app finalize failed", "app", name, "error", err)
	}

	e.mu.Lock()
	record.status = StatusTerminated
	record.app = nil
	e.mu.Unlock()

	e.NotifyObservers(ctx, NewCloudEvent(EventTypeAppTerminated, eventSource, map[string]any{"app": name}))
	return nil
}

// Unregister terminates the app if needed and removes its record from the
// registry entirely.
func (e *Engine) Unregister(ctx context.Context, name string) error {
	e.mu.RLock()
	record, ok := e.records[name]
	var status AppStatus
	if ok {
		status = record.status
	}
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unregistering app %q: %w", name, ErrAppNotFound)
	}
	if status == StatusRunning || status == StatusFailed {
		if err := e.Terminate(ctx, name); err != nil {
			return err
		}
	}

	e.mu.Lock()
	delete(e.records, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.NotifyObservers(ctx, NewCloudEvent(EventTypeAppUnregistered, eventSource, map[string]any{"app": name}))
	return nil
}

// Reload terminates the app and registers it again under the same name and
// configuration, with a factory freshly resolved from its load unit so new
// code is picked up.
func (e *Engine) Reload(ctx context.Context, name string) error {
	e.mu.RLock()
	record, ok := e.records[name]
	var status AppStatus
	if ok {
		status = record.status
	}
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("reloading app %q: %w", name, ErrAppNotFound)
	}

	e.logger.Info("reloading app", "app", name)
	e.NotifyObservers(ctx, NewCloudEvent(EventTypeReloadStarted, eventSource, map[string]any{"app": name}))

	if status == StatusRunning || status == StatusFailed {
		if err := e.Terminate(ctx, name); err != nil {
			return err
		}
	}
	if err := e.RestoreApp(ctx, name); err != nil {
		e.NotifyObservers(ctx, NewCloudEvent(EventTypeReloadFailed, eventSource,
			map[string]any{"app": name, "error": err.Error()}))
		return err
	}
	e.NotifyObservers(ctx, NewCloudEvent(EventTypeReloadCompleted, eventSource, map[string]any{"app": name}))
	return nil
}

// RestoreApp re-registers a terminated app using its stored configuration
// and a factory freshly resolved from its declaring load unit. The
// dependency tracker drives it at the end of a reload pass.
func (e *Engine) RestoreApp(ctx context.Context, name string) error {
	e.mu.RLock()
	record, ok := e.records[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("restoring app %q: %w", name, ErrAppNotFound)
	}

	factory := record.factory
	if e.source != nil {
		fresh, err := e.resolveFactory(record.UnitID, name)
		if err != nil {
			return err
		}
		factory = fresh
	}

	return e.Register(ctx, AppRegistration{
		Name:    name,
		UnitID:  record.UnitID,
		Factory: factory,
		Config:  record.Config,
	})
}

func (e *Engine) resolveFactory(unitID, name string) (AppFactory, error) {
	defs, err := e.source.AppsInUnit(unitID)
	if err != nil {
		return nil, fmt.Errorf("resolving factory for app %q: %w", name, err)
	}
	for _, def := range defs {
		if def.Name == name {
			return def.Factory, nil
		}
	}
	return nil, fmt.Errorf("resolving factory for app %q in unit %q: %w", name, unitID, ErrAppNotDeclared)
}

// RegisterUnitApps registers every app a load unit declares, with the
// configuration values the source provides. Names already held by live
// records are skipped with a warning.
func (e *Engine) RegisterUnitApps(ctx context.Context, unitID string) error {
	if e.source == nil {
		return nil
	}
	defs, err := e.source.AppsInUnit(unitID)
	if err != nil {
		return fmt.Errorf("listing apps for unit %q: %w", unitID, err)
	}

	for _, def := range defs {
		err := e.Register(ctx, AppRegistration{
			Name:    def.Name,
			UnitID:  unitID,
			Factory: def.Factory,
			Config:  def.Config,
		})
		switch {
		case err == nil:
		case isDuplicate(err):
			e.logger.Warn("app name already registered, skipping", "app", def.Name, "unit", unitID)
		default:
			// Initialization failures are isolated per app; the rest of
			// the unit's apps still register.
			e.logger.Error("registering app from unit", "app", def.Name, "unit", unitID, "error", err)
		}
	}
	return nil
}

// TerminateApp adapts Terminate for the dependency tracker, tolerating
// records that are already out of the running set.
func (e *Engine) TerminateApp(ctx context.Context, name string) error {
	err := e.Terminate(ctx, name)
	if err != nil && isNotRunning(err) {
		return nil
	}
	return err
}

// AppsForUnits returns, in registration order, the names of all apps whose
// declaring unit is in the given set.
func (e *Engine) AppsForUnits(units []string) []string {
	set := make(map[string]struct{}, len(units))
	for _, u := range units {
		set[u] = struct{}{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var names []string
	for _, name := range e.order {
		if _, ok := set[e.records[name].UnitID]; ok {
			names = append(names, name)
		}
	}
	return names
}

// StopAllApps terminates every running or failed app, in reverse
// registration order. Used on shutdown and when the connector link drops.
func (e *Engine) StopAllApps(ctx context.Context) {
	e.mu.RLock()
	names := make([]string, len(e.order))
	copy(names, e.order)
	e.mu.RUnlock()

	for i := len(names) - 1; i >= 0; i-- {
		if err := e.TerminateApp(ctx, names[i]); err != nil {
			e.logger.Error("stopping app", "app", names[i], "error", err)
		}
	}
}

// StartAllApps restores every terminated app, in registration order. Used
// when the connector link recovers.
func (e *Engine) StartAllApps(ctx context.Context) {
	e.mu.RLock()
	var names []string
	for _, name := range e.order {
		if e.records[name].status == StatusTerminated {
			names = append(names, name)
		}
	}
	e.mu.RUnlock()

	for _, name := range names {
		if err := e.RestoreApp(ctx, name); err != nil {
			e.logger.Error("starting app", "app", name, "error", err)
		}
	}
}

// Snapshot returns a point-in-time view of every record, in registration
// order. Failed apps remain discoverable here.
func (e *Engine) Snapshot() []AppInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]AppInfo, 0, len(e.order))
	for _, name := range e.order {
		r := e.records[name]
		infos = append(infos, AppInfo{
			Name:      r.Name,
			UnitID:    r.UnitID,
			Status:    r.status,
			Callbacks: e.sched.OwnedCount(r.Name),
		})
	}
	return infos
}

// AppInfoFor returns the view of a single record.
func (e *Engine) AppInfoFor(name string) (AppInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.records[name]
	if !ok {
		return AppInfo{}, ErrAppNotFound
	}
	return AppInfo{
		Name:      r.Name,
		UnitID:    r.UnitID,
		Status:    r.status,
		Callbacks: e.sched.OwnedCount(r.Name),
	}, nil
}

// guard is the per-app fault boundary: it runs fn, converting panics to
// errors so nothing escapes into the engine's own control flow.
func (e *Engine) guard(app string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in app %q: %v", app, r)
		}
	}()
	return fn()
}

func isDuplicate(err error) bool  { return errors.Is(err, ErrDuplicateAppName) }
func isNotRunning(err error) bool { return errors.Is(err, ErrAppNotRunning) }
