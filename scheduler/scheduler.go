// Package scheduler implements the callback/scheduler core: a single
// registry of pending triggers covering both time-based schedules (fixed
// time, interval, cron, sun-relative) and condition-based subscriptions
// (entity state, attribute, raw events), with one dispatch authority.
//
// Due timers and matched state updates become independent units of work on
// a worker pool; the dispatch loop never blocks waiting for a callback to
// finish. Among entries due at the same instant, and among subscriptions
// matched by the same update, dispatch follows registration order.
package scheduler

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carlos-sarmiento/domovoy/statecache"
)

// Attribute sentinels for condition-based subscriptions.
const (
	// AttributeState selects changes to the entity's state value.
	AttributeState = "state"
	// AttributeAll selects any change to the entity; old and new carry the
	// full cache entries and no equality suppression is applied.
	AttributeAll = "all"
)

// Logger is the subset of the runtime logger the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type entryKind int

const (
	kindTimer entryKind = iota
	kindState
	kindEvent
)

// entry is one registered callback: a trigger or subscription bound to a
// normalized target and an owning app. Entries never outlive their owner;
// the engine cancels them all when the app leaves the running set.
type entry struct {
	id      string
	owner   string
	seq     uint64
	kind    entryKind
	oneshot bool

	// timer entries
	trigger Trigger
	next    time.Time

	// state/attribute subscriptions
	entities  map[string]struct{}
	attribute string

	// event subscriptions
	events map[string]struct{}

	invoke    invoker
	extras    map[string]any
	cancelled atomic.Bool
}

// Scheduler is the single dispatch authority for all callback entries.
type Scheduler struct {
	logger Logger
	cache  *statecache.Cache

	mu      sync.Mutex
	entries map[string]*entry
	ordered []*entry
	seq     uint64

	tick        time.Duration
	workerCount int
	queueSize   int
	location    *Location
	now         func() time.Time

	jobQueue  chan func()
	rawEvents chan Invocation

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startMu   sync.Mutex
	isStarted bool
	cancelSub func()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets the timer evaluation resolution.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithQueueSize sets the dispatch queue size. When the queue is full a
// unit of work runs on its own goroutine instead of blocking the loop.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLocation enables sun-relative triggers for the given position.
func WithLocation(loc Location) Option {
	return func(s *Scheduler) { s.location = &loc }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler reading state changes from cache.
func New(cache *statecache.Cache, logger Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:      logger,
		cache:       cache,
		entries:     make(map[string]*entry),
		tick:        250 * time.Millisecond,
		workerCount: 8,
		queueSize:   256,
		now:         time.Now,
		rawEvents:   make(chan Invocation, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the workers and the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.isStarted {
		return nil
	}

	s.logger.Info("starting scheduler", "workers", s.workerCount, "tick", s.tick)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.jobQueue = make(chan func(), s.queueSize)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	updates, cancelSub := s.cache.Subscribe()
	s.cancelSub = cancelSub

	s.wg.Add(1)
	go s.run(updates)

	s.isStarted = true
	return nil
}

// Stop halts dispatch and waits for in-flight units of work to complete,
// up to the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if !s.isStarted {
		return ErrNotStarted
	}

	s.logger.Info("stopping scheduler")
	s.cancel()
	s.cancelSub()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for in-flight callbacks")
		return ctx.Err()
	}

	s.isStarted = false
	return nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobQueue:
			job()
		}
	}
}

// run is the dispatch loop: it evaluates due timers on every tick and,
// independently, consumes the cache's change stream and the raw event
// stream, matching each against the registered subscriptions.
func (s *Scheduler) run(updates <-chan statecache.Change) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fireDue()
		case change, ok := <-updates:
			if !ok {
				return
			}
			s.matchChange(change)
		case inv := <-s.rawEvents:
			s.matchEvent(inv)
		}
	}
}

// fireDue dispatches every timer entry whose next fire time has arrived,
// ordered by fire time with registration order breaking ties.
func (s *Scheduler) fireDue() {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.ordered {
		if e.kind == kindTimer && !e.next.IsZero() && !e.next.After(now) {
			due = append(due, e)
		}
	}
	// ordered is registration-ordered already; a stable earliest-first
	// sort keeps registration order among same-instant ties.
	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].next.Before(due[j-1].next); j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	for _, e := range due {
		if next, ok := e.trigger.Next(now); ok {
			e.next = next
		} else {
			// Exhausted triggers leave the registry but their final firing
			// is still pending below; detaching must not mark them
			// cancelled or dispatch would drop it.
			s.detachLocked(e.id)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.dispatch(e, Invocation{Handle: e.id, Extras: e.extras})
	}
}

// matchChange dispatches every state subscription the change matches, in
// registration order.
func (s *Scheduler) matchChange(change statecache.Change) {
	s.mu.Lock()
	snapshot := make([]*entry, len(s.ordered))
	copy(snapshot, s.ordered)
	s.mu.Unlock()

	for _, e := range snapshot {
		if e.kind != kindState {
			continue
		}
		if _, ok := e.entities[change.EntityID]; !ok {
			continue
		}
		inv, ok := buildStateInvocation(e, change.EntityID, change.Old, change.New)
		if !ok {
			continue
		}
		s.dispatch(e, inv)
	}
}

// buildStateInvocation extracts the old/new pair a subscription's attribute
// filter selects. Unchanged values suppress dispatch, except under the
// AttributeAll sentinel where every replacement is delivered.
func buildStateInvocation(e *entry, entityID string, old, new *statecache.Entry) (Invocation, bool) {
	inv := Invocation{
		Handle:    e.id,
		EntityID:  entityID,
		Attribute: e.attribute,
		Extras:    e.extras,
	}

	switch e.attribute {
	case AttributeAll:
		if old != nil {
			inv.Old = old
		}
		if new != nil {
			inv.New = new
		}
	case AttributeState:
		var oldV, newV any
		if old != nil {
			oldV = old.State
		}
		if new != nil {
			newV = new.State
		}
		if oldV == newV {
			return Invocation{}, false
		}
		inv.Old, inv.New = oldV, newV
	default:
		var oldV, newV any
		if old != nil {
			oldV = old.Attributes[e.attribute]
		}
		if new != nil {
			newV = new.Attributes[e.attribute]
		}
		if reflect.DeepEqual(oldV, newV) {
			return Invocation{}, false
		}
		inv.Old, inv.New = oldV, newV
	}
	return inv, true
}

// matchEvent dispatches every event subscription whose name filter matches,
// in registration order.
func (s *Scheduler) matchEvent(inv Invocation) {
	s.mu.Lock()
	snapshot := make([]*entry, len(s.ordered))
	copy(snapshot, s.ordered)
	s.mu.Unlock()

	for _, e := range snapshot {
		if e.kind != kindEvent {
			continue
		}
		if _, ok := e.events[inv.EventName]; !ok {
			continue
		}
		out := inv
		out.Handle = e.id
		out.Extras = e.extras
		s.dispatch(e, out)
	}
}

// PublishEvent feeds a raw named event into the dispatch loop. The engine's
// connector pump calls it for platform events; apps can use it for local
// app-to-app signaling.
func (s *Scheduler) PublishEvent(name string, data map[string]any) {
	s.startMu.Lock()
	started := s.isStarted
	ctx := s.ctx
	s.startMu.Unlock()

	if !started {
		s.logger.Warn("dropping event published before scheduler start", "event", name)
		return
	}

	select {
	case s.rawEvents <- Invocation{EventName: name, Data: data}:
	case <-ctx.Done():
	}
}

// dispatch hands a matched entry to the worker pool as an independent unit
// of work. A full queue spills to a dedicated goroutine so the dispatch
// loop and the caller never block on callback execution. Oneshot entries
// are cancelled before their only invocation runs.
func (s *Scheduler) dispatch(e *entry, inv Invocation) {
	if e.cancelled.Load() {
		return
	}
	if e.oneshot {
		s.Cancel(e.id)
	}

	job := func() { s.invokeSafely(e, inv) }
	if s.jobQueue == nil {
		go job()
		return
	}
	select {
	case s.jobQueue <- job:
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job()
		}()
	}
}

// invokeSafely runs one unit of work inside the per-app fault boundary:
// errors and panics are logged with the owner's identity and go no further.
func (s *Scheduler) invokeSafely(e *entry, inv Invocation) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in callback", "app", e.owner, "handle", e.id, "panic", r)
		}
	}()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.invoke(ctx, inv); err != nil {
		s.logger.Error("callback returned error", "app", e.owner, "handle", e.id, "error", err)
	}
}

// register inserts an entry and assigns its registration sequence.
func (s *Scheduler) register(e *entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.seq = s.seq
	s.entries[e.id] = e
	s.ordered = append(s.ordered, e)
	return e.id
}

// Cancel removes a callback entry by handle. It is safe to call while a
// dispatch for the handle is in flight: the running unit of work completes
// and no new dispatch occurs. Returns false for unknown handles.
func (s *Scheduler) Cancel(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(handle)
}

func (s *Scheduler) removeLocked(handle string) bool {
	e, ok := s.entries[handle]
	if !ok {
		return false
	}
	e.cancelled.Store(true)
	s.detachLocked(handle)
	return true
}

// detachLocked removes an entry from the registry tables without marking
// it cancelled, so an already-due dispatch still runs.
func (s *Scheduler) detachLocked(handle string) {
	delete(s.entries, handle)
	for i, o := range s.ordered {
		if o.id == handle {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
}

// CancelOwned removes every entry owned by the given app and returns how
// many were cancelled. The engine calls it when an app leaves the running
// set so that no callback outlives its owner.
func (s *Scheduler) CancelOwned(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handles []string
	for _, e := range s.ordered {
		if e.owner == owner {
			handles = append(handles, e.id)
		}
	}
	for _, h := range handles {
		s.removeLocked(h)
	}
	return len(handles)
}

// OwnedCount returns the number of live entries owned by an app.
func (s *Scheduler) OwnedCount(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.ordered {
		if e.owner == owner {
			n++
		}
	}
	return n
}

func newHandle(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
