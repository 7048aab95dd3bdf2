// Package deptrack implements the dependency-tracking hot-reload system:
// a DAG over load units with reverse edges and generation counters, a
// debounced file watcher, and serialized "reload affected" passes that
// tear down the apps a source change touches, re-import the affected units
// in dependency order, and bring the apps back on fresh code.
package deptrack

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger is the subset of the runtime logger the tracker needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type reloadRequest struct {
	path     string
	deletion bool
	reply    chan reloadResult
}

type reloadResult struct {
	apps []string
	err  error
}

// Tracker watches a source tree, maps change events to the transitive set
// of dependent load units, and replaces running apps in place. Reload
// passes are serialized through a single request queue so overlapping
// requests for intersecting app sets apply one at a time, never partially
// interleaved.
type Tracker struct {
	graph  *Graph
	loader Loader
	apps   AppController
	logger Logger

	root     string
	debounce time.Duration

	watcher  *fsnotify.Watcher
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	requests chan reloadRequest

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startMu   sync.Mutex
	isStarted bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWatchRoot enables filesystem watching of the given directory tree.
// Without it the tracker only reloads on explicit OnSourceChanged calls.
func WithWatchRoot(root string) Option {
	return func(t *Tracker) { t.root = root }
}

// WithDebounce sets the per-path coalescing window for change events.
func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.debounce = d
		}
	}
}

// New creates a tracker over the given loader and app controller.
func New(loader Loader, apps AppController, logger Logger, opts ...Option) *Tracker {
	t := &Tracker{
		graph:    NewGraph(),
		loader:   loader,
		apps:     apps,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		requests: make(chan reloadRequest, 64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Graph exposes the dependency graph for status queries and tests.
func (t *Tracker) Graph() *Graph { return t.graph }

// Start builds the initial graph from the loader's root units, registers
// the apps they declare, and begins watching for changes.
func (t *Tracker) Start(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if t.isStarted {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	if err := t.bootstrap(t.ctx); err != nil {
		t.cancel()
		return err
	}

	t.wg.Add(1)
	go t.processRequests()

	if t.root != "" {
		if err := t.startWatcher(); err != nil {
			t.cancel()
			return err
		}
	}

	t.isStarted = true
	return nil
}

// Stop halts watching and waits for the in-flight reload pass, if any.
func (t *Tracker) Stop(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if !t.isStarted {
		return ErrNotStarted
	}

	t.logger.Info("stopping dependency tracker")
	if t.watcher != nil {
		_ = t.watcher.Close()
	}
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.isStarted = false
	return nil
}

func (t *Tracker) bootstrap(ctx context.Context) error {
	ids, err := t.loader.Units(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		unit, err := t.loader.Load(ctx, id)
		if err != nil {
			return &ReloadError{Unit: id, Err: err}
		}
		if err := t.loadImportClosure(ctx, unit); err != nil {
			return err
		}
	}

	t.logger.Info("dependency graph built", "units", len(t.graph.Units()))

	for _, id := range ids {
		if err := t.apps.RegisterUnitApps(ctx, id); err != nil {
			t.logger.Error("registering apps for unit", "unit", id, "error", err)
		}
	}
	return nil
}

// loadImportClosure inserts a unit and transitively loads any imports the
// graph has not seen yet.
func (t *Tracker) loadImportClosure(ctx context.Context, unit *Unit) error {
	if err := t.graph.SetUnit(unit.ID, unit.Imports); err != nil {
		return &ReloadError{Unit: unit.ID, Err: err}
	}
	t.graph.MarkLoaded(unit.ID)

	for _, imp := range unit.Imports {
		if t.graph.Loaded(imp) {
			continue
		}
		child, err := t.loader.Load(ctx, imp)
		if err != nil {
			return &ReloadError{Unit: imp, Err: err}
		}
		if err := t.loadImportClosure(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// OnSourceChanged queues a reload pass for the unit at path and waits for
// its outcome, returning the names of the apps that were reloaded. Changes
// to paths that are not tracked units are ignored.
func (t *Tracker) OnSourceChanged(ctx context.Context, path string) ([]string, error) {
	req := reloadRequest{path: path, reply: make(chan reloadResult, 1)}
	select {
	case t.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.apps, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// processRequests serializes reload passes.
func (t *Tracker) processRequests() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case req := <-t.requests:
			var res reloadResult
			if req.deletion {
				res.apps, res.err = t.handleDeletion(t.ctx, req.path)
			} else {
				res.apps, res.err = t.reloadAffected(t.ctx, req.path)
			}
			if res.err != nil {
				t.logger.Error("reload pass failed", "unit", req.path, "error", res.err)
			}
			if req.reply != nil {
				req.reply <- res
			}
		}
	}
}

// reloadAffected is one reload pass: terminate every app whose declaring
// unit transitively imports the changed unit, unload the affected units
// most-dependent-first, re-import them dependencies-first rebuilding the
// graph's edges as re-import proceeds, then re-register the apps with
// their stored configuration and freshly resolved factories.
func (t *Tracker) reloadAffected(ctx context.Context, unitID string) ([]string, error) {
	if !t.graph.Contains(unitID) {
		return t.adoptNewUnit(ctx, unitID)
	}

	affected := t.graph.Dependents(unitID)
	names := t.apps.AppsForUnits(affected)

	t.logger.Info("reloading affected units",
		"changed", unitID, "units", affected, "apps", names)

	for _, name := range names {
		if err := t.apps.TerminateApp(ctx, name); err != nil {
			t.logger.Warn("terminating app before reload", "app", name, "error", err)
		}
	}

	for _, id := range t.graph.SortReverse(affected) {
		t.graph.MarkUnloaded(id)
	}

	for _, id := range t.graph.SortForward(affected) {
		unit, err := t.loader.Load(ctx, id)
		if err != nil {
			// Abort: remaining units stay unloaded and the affected apps
			// stay terminated until a corrected reload succeeds.
			return nil, &ReloadError{Unit: id, Err: err}
		}
		if err := t.graph.SetUnit(id, unit.Imports); err != nil {
			return nil, &ReloadError{Unit: id, Err: err}
		}
		t.graph.MarkLoaded(id)
	}

	reloaded := make([]string, 0, len(names))
	for _, name := range names {
		if err := t.apps.RestoreApp(ctx, name); err != nil {
			t.logger.Error("restoring app after reload", "app", name, "error", err)
			continue
		}
		reloaded = append(reloaded, name)
	}
	return reloaded, nil
}

// adoptNewUnit handles a change event for a path the graph does not track
// yet: if the loader recognizes it, it joins the graph and its apps are
// registered; otherwise the event is ignored.
func (t *Tracker) adoptNewUnit(ctx context.Context, unitID string) ([]string, error) {
	unit, err := t.loader.Load(ctx, unitID)
	if err != nil {
		t.logger.Debug("ignoring change for untracked path", "path", unitID, "error", err)
		return nil, nil
	}
	if err := t.loadImportClosure(ctx, unit); err != nil {
		return nil, err
	}
	if err := t.apps.RegisterUnitApps(ctx, unitID); err != nil {
		return nil, err
	}
	return t.apps.AppsForUnits([]string{unitID}), nil
}

// handleDeletion terminates the apps of every unit that depended on the
// deleted unit and drops it from the graph. Dependent units stay unloaded;
// their next reload will surface the missing import.
func (t *Tracker) handleDeletion(ctx context.Context, unitID string) ([]string, error) {
	if !t.graph.Contains(unitID) {
		return nil, nil
	}

	affected := t.graph.Dependents(unitID)
	names := t.apps.AppsForUnits(affected)

	t.logger.Info("unit deleted, stopping dependent apps", "unit", unitID, "apps", names)

	for _, name := range names {
		if err := t.apps.TerminateApp(ctx, name); err != nil {
			t.logger.Warn("terminating app after unit deletion", "app", name, "error", err)
		}
	}
	for _, id := range affected {
		t.graph.MarkUnloaded(id)
	}
	t.graph.Remove(unitID)
	return names, nil
}

func (t *Tracker) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	t.watcher = watcher

	err = filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return err
	}

	t.logger.Info("watching for source changes", "root", t.root, "debounce", t.debounce)

	t.wg.Add(1)
	go t.consumeWatcher()
	return nil
}

func (t *Tracker) consumeWatcher() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleFsEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (t *Tracker) handleFsEvent(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := t.watcher.Add(event.Name); err != nil {
				t.logger.Warn("watching new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	deletion := event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename)
	if !deletion && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}

	rel, err := filepath.Rel(t.root, event.Name)
	if err != nil {
		return
	}
	unitID := filepath.ToSlash(rel)

	t.debouncePath(unitID, deletion)
}

// debouncePath coalesces rapid change notifications for the same unit into
// a single reload pass per debounce window.
func (t *Tracker) debouncePath(unitID string, deletion bool) {
	t.timersMu.Lock()
	defer t.timersMu.Unlock()

	if timer, ok := t.timers[unitID]; ok {
		timer.Stop()
	}
	t.timers[unitID] = time.AfterFunc(t.debounce, func() {
		t.timersMu.Lock()
		delete(t.timers, unitID)
		t.timersMu.Unlock()

		t.logger.Debug("source change detected", "unit", unitID, "deletion", deletion)
		select {
		case t.requests <- reloadRequest{path: unitID, deletion: deletion}:
		case <-t.ctx.Done():
		}
	})
}
