package scheduler

import (
	"fmt"
	"time"
)

// OwnerHandle is the registration surface handed to one app. Every entry it
// creates is tagged with the owning app's name so the engine can cancel
// them all when the app leaves the running set.
type OwnerHandle struct {
	s     *Scheduler
	owner string
}

// Owner returns the registration surface for the named app.
func (s *Scheduler) Owner(name string) *OwnerHandle {
	return &OwnerHandle{s: s, owner: name}
}

type callOptions struct {
	oneshot   bool
	immediate bool
	extras    map[string]any
}

// CallOption adjusts a single registration.
type CallOption func(*callOptions)

// Oneshot auto-cancels the entry after its first delivery.
func Oneshot() CallOption {
	return func(o *callOptions) { o.oneshot = true }
}

// Immediate requests synchronous delivery of the current cached value
// during registration of a state or attribute subscription.
func Immediate() CallOption {
	return func(o *callOptions) { o.immediate = true }
}

// WithExtras binds extra named arguments, made available to the target by
// field name alongside the standard superset.
func WithExtras(extras map[string]any) CallOption {
	return func(o *callOptions) { o.extras = extras }
}

func applyOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RunAt schedules target once at an absolute time.
func (h *OwnerHandle) RunAt(at time.Time, target any, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	trig, err := newAtTrigger(at, h.s.now())
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

// RunIn schedules target once after a delay.
func (h *OwnerHandle) RunIn(delay time.Duration, target any, opts ...CallOption) (string, error) {
	if delay <= 0 {
		return "", fmt.Errorf("%w: non-positive delay %s", ErrInvalidTriggerSpec, delay)
	}
	o := applyOptions(opts)
	trig, err := newAtTrigger(h.s.now().Add(delay), h.s.now())
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

// RunDaily schedules target every day at a fixed local time.
func (h *OwnerHandle) RunDaily(hour, minute int, target any, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	trig, err := newDailyTrigger(hour, minute)
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

// RunCron schedules target on a standard cron expression.
func (h *OwnerHandle) RunCron(expr string, target any, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	trig, err := newCronTrigger(expr)
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

// RunEvery schedules target on a recurring interval. A zero start anchors
// the first fire at registration time; a future start anchors it there; a
// past start advances to the next interval boundary.
func (h *OwnerHandle) RunEvery(every time.Duration, start time.Time, target any, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	trig, err := newIntervalTrigger(every, start, h.s.now())
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

// RunOnSunEvent schedules target daily relative to an astronomical event.
// A negative offset fires before the event. The fire time is recomputed
// every cycle since sun event times vary by day.
func (h *OwnerHandle) RunOnSunEvent(event SunEvent, offset time.Duration, target any, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	trig, err := newSunTrigger(h.s.location, event, offset)
	if err != nil {
		return "", err
	}
	return h.registerTimer(trig, target, o)
}

func (h *OwnerHandle) registerTimer(trig Trigger, target any, o callOptions) (string, error) {
	invoke, err := newInvoker(target, o.extras)
	if err != nil {
		return "", err
	}
	first, err := trig.First(h.s.now())
	if err != nil {
		return "", err
	}
	e := &entry{
		id:      newHandle("scheduler"),
		owner:   h.owner,
		kind:    kindTimer,
		oneshot: o.oneshot,
		trigger: trig,
		next:    first,
		invoke:  invoke,
		extras:  o.extras,
	}
	return h.s.register(e), nil
}

// ListenState subscribes target to state-value changes of the given
// entities. Immediate requests one synchronous delivery of the current
// cached value during registration; Oneshot auto-cancels after the first
// delivery.
func (h *OwnerHandle) ListenState(entities []string, target any, opts ...CallOption) (string, error) {
	return h.ListenAttribute(entities, AttributeState, target, opts...)
}

// ListenAttribute subscribes target to changes of one attribute of the
// given entities, or to any change under the AttributeAll sentinel.
func (h *OwnerHandle) ListenAttribute(entities []string, attribute string, target any, opts ...CallOption) (string, error) {
	if len(entities) == 0 {
		return "", fmt.Errorf("%w: %w", ErrInvalidTriggerSpec, ErrEmptyEntityList)
	}
	if attribute == "" {
		return "", fmt.Errorf("%w: attribute name is empty", ErrInvalidTriggerSpec)
	}
	o := applyOptions(opts)
	invoke, err := newInvoker(target, o.extras)
	if err != nil {
		return "", err
	}

	set := make(map[string]struct{}, len(entities))
	for _, eid := range entities {
		if eid == "" {
			return "", fmt.Errorf("%w: empty entity id", ErrInvalidTriggerSpec)
		}
		if !h.s.cache.Exists(eid) {
			h.s.logger.Warn("subscribing to entity not present in cache", "app", h.owner, "entity", eid)
		}
		set[eid] = struct{}{}
	}

	e := &entry{
		id:        newHandle("event"),
		owner:     h.owner,
		kind:      kindState,
		oneshot:   o.oneshot,
		entities:  set,
		attribute: attribute,
		invoke:    invoke,
		extras:    o.extras,
	}
	// Immediate delivery happens before the entry becomes visible to the
	// dispatch loop, so a live update arriving in the registration window
	// cannot be delivered ahead of or on top of it.
	if o.immediate {
		if consumed := h.s.deliverImmediate(e, entities); consumed {
			return e.id, nil
		}
	}
	h.s.register(e)
	return e.id, nil
}

// deliverImmediate synchronously delivers the current cached value of each
// subscribed entity to a not-yet-registered subscription. It reports
// whether a oneshot entry was consumed by the delivery, in which case the
// entry must not be registered at all.
func (s *Scheduler) deliverImmediate(e *entry, entities []string) bool {
	for _, eid := range entities {
		full, err := s.cache.GetFull(eid)
		if err != nil {
			continue
		}
		inv, ok := buildStateInvocation(e, eid, nil, full)
		if !ok {
			continue
		}
		s.invokeSafely(e, inv)
		if e.oneshot {
			return true
		}
	}
	return false
}

// ListenEvent subscribes target to raw named events.
func (h *OwnerHandle) ListenEvent(names []string, target any, opts ...CallOption) (string, error) {
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %w", ErrInvalidTriggerSpec, ErrEmptyEventList)
	}
	o := applyOptions(opts)
	invoke, err := newInvoker(target, o.extras)
	if err != nil {
		return "", err
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return "", fmt.Errorf("%w: empty event name", ErrInvalidTriggerSpec)
		}
		set[name] = struct{}{}
	}

	e := &entry{
		id:      newHandle("event"),
		owner:   h.owner,
		kind:    kindEvent,
		oneshot: o.oneshot,
		events:  set,
		invoke:  invoke,
		extras:  o.extras,
	}
	return h.s.register(e), nil
}

// Cancel removes one of the app's own callback entries. Handles owned by
// other apps are left untouched.
func (h *OwnerHandle) Cancel(handle string) bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	e, ok := h.s.entries[handle]
	if !ok || e.owner != h.owner {
		return false
	}
	return h.s.removeLocked(handle)
}

// CancelAll removes every entry the app owns.
func (h *OwnerHandle) CancelAll() int {
	return h.s.CancelOwned(h.owner)
}

// Count returns the app's live entry count.
func (h *OwnerHandle) Count() int {
	return h.s.OwnedCount(h.owner)
}
