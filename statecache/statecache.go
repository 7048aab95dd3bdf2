// Package statecache maintains the latest known value and attributes for
// every external entity, fed by a one-way stream of change notifications
// from the platform connector. Reads are non-blocking in-memory lookups;
// writes happen only through Ingest and Evict. Subscribers (the scheduler
// core) receive a change notification only when an ingest actually
// replaces an entry.
package statecache

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// Cache errors
var (
	// ErrEntityNotFound is returned by GetFull for an entity the cache has
	// never seen.
	ErrEntityNotFound = errors.New("entity not found in cache")

	// ErrWaitTimeout is returned by WaitFor when the timeout elapses
	// before the entity satisfies the wait condition.
	ErrWaitTimeout = errors.New("timed out waiting for entity state")
)

// StateUnknown is returned by Get for entities the cache has never seen.
const StateUnknown = "unknown"

// Logger is the subset of the runtime logger the cache needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Entry is the last known state of one entity. LastUpdated advances on
// every accepted ingest; LastChanged only when the state value itself
// changed. Both are monotonically non-decreasing per entity.
type Entry struct {
	EntityID    string         `json:"entityId"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"lastChanged"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// TimeInState reports how long the entity has held its current state value.
func (e *Entry) TimeInState(now time.Time) time.Duration {
	return now.Sub(e.LastChanged)
}

// InStateForAtLeast reports whether the entity's state is one of states and
// has been held continuously for at least d.
func (e *Entry) InStateForAtLeast(states []string, d time.Duration, now time.Time) bool {
	for _, s := range states {
		if e.State == s {
			return !now.Before(e.LastChanged.Add(d))
		}
	}
	return false
}

// Change is a notification that an entry was replaced or evicted. Old is
// nil the first time an entity is seen; New is nil on eviction.
type Change struct {
	EntityID  string
	Old       *Entry
	New       *Entry
	Timestamp time.Time
}

// Cache is the in-memory entity state store. All methods are safe for
// concurrent use. Apps never mutate it directly; only the connector pump
// calls Ingest and Evict.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int

	logger Logger
}

// New creates an empty cache.
func New(logger Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		subs:    make(map[int]chan Change),
		logger:  logger,
	}
}

// Ingest records a new state for an entity. Updates whose timestamp is
// older than the entry's LastUpdated are stale: they are dropped and logged
// at debug severity, never applied. An update with a timestamp equal to the
// current one is treated as a duplicate and dropped silently. Subscribers
// are notified only when the entry is actually replaced.
func (c *Cache) Ingest(entityID, state string, attributes map[string]any, timestamp time.Time) {
	c.mu.Lock()
	old := c.entries[entityID]

	if old != nil {
		if timestamp.Before(old.LastUpdated) {
			c.mu.Unlock()
			c.logger.Debug("dropping stale cache update",
				"entity", entityID,
				"entryUpdated", old.LastUpdated,
				"updateTimestamp", timestamp)
			return
		}
		if timestamp.Equal(old.LastUpdated) {
			c.mu.Unlock()
			return
		}
	}

	entry := &Entry{
		EntityID:    entityID,
		State:       state,
		Attributes:  maps.Clone(attributes),
		LastChanged: timestamp,
		LastUpdated: timestamp,
	}
	if old != nil && old.State == state {
		entry.LastChanged = old.LastChanged
	}
	c.entries[entityID] = entry
	c.mu.Unlock()

	c.notify(Change{EntityID: entityID, Old: old, New: entry, Timestamp: timestamp})
}

// Evict removes an entity the platform no longer reports. Subscribers see a
// Change with a nil New.
func (c *Cache) Evict(entityID string, timestamp time.Time) {
	c.mu.Lock()
	old, ok := c.entries[entityID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.entries, entityID)
	c.mu.Unlock()

	c.notify(Change{EntityID: entityID, Old: old, Timestamp: timestamp})
}

// Get returns the entity's current state value, or StateUnknown if the
// cache has never seen the entity.
func (c *Cache) Get(entityID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[entityID]; ok {
		return e.State
	}
	return StateUnknown
}

// GetFull returns a copy of the entity's full entry.
func (c *Cache) GetFull(entityID string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[entityID]
	if !ok {
		return nil, ErrEntityNotFound
	}
	cp := *e
	cp.Attributes = maps.Clone(e.Attributes)
	return &cp, nil
}

// Exists reports whether the entity is present in the cache.
func (c *Cache) Exists(entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[entityID]
	return ok
}

// EntityIDsByAttribute returns the ids of all entities carrying the given
// attribute. When value is non-nil, only entities whose attribute equals it
// are returned.
func (c *Cache) EntityIDsByAttribute(attribute string, value any) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, e := range c.entries {
		v, ok := e.Attributes[attribute]
		if !ok {
			continue
		}
		if value == nil || v == value {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers a change stream. The returned cancel func must be
// called to release the subscription. Slow consumers do not block Ingest:
// when a subscriber's buffer is full the oldest pending change is dropped
// with a warning.
func (c *Cache) Subscribe() (<-chan Change, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan Change, 256)
	c.subs[id] = ch

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *Cache) notify(change Change) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
				c.logger.Warn("cache subscriber lagging, dropped oldest change", "entity", change.EntityID)
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
