package domovoy

import (
	"context"
	"time"
)

// ConnectionState reports the connector's link to the external platform.
type ConnectionState int

const (
	// Disconnected means the platform link is down. The engine stops all
	// apps until the link recovers.
	Disconnected ConnectionState = iota
	// Connected means the platform link is up and the update stream is
	// live. The engine (re)starts registered apps.
	Connected
)

// StateUpdate is one element of the connector's change stream: the new
// value and attributes for an entity, or its removal.
type StateUpdate struct {
	EntityID   string
	State      string
	Attributes map[string]any
	Timestamp  time.Time
	// Deleted marks that the platform removed the entity; the cache entry
	// is evicted rather than replaced.
	Deleted bool
}

// PlatformEvent is a raw named event from the external platform.
type PlatformEvent struct {
	Name string
	Data map[string]any
}

// Connector is the runtime's narrow view of the external platform client.
// The runtime only consumes its streams and calls out through it; the wire
// protocol lives entirely behind this interface.
type Connector interface {
	// GetStates returns the current state of every entity, used to prime
	// the cache when the link comes up.
	GetStates(ctx context.Context) ([]StateUpdate, error)

	// Invoke calls a platform service.
	Invoke(ctx context.Context, domain, service string, data map[string]any) (map[string]any, error)

	// FireEvent publishes a named event on the platform bus.
	FireEvent(ctx context.Context, name string, data map[string]any) error

	// Updates is the one-way stream of entity change notifications.
	Updates() <-chan StateUpdate

	// Events is the stream of raw named platform events.
	Events() <-chan PlatformEvent

	// ConnectionStates reports link transitions. The engine supervises
	// apps on it: stop on Disconnected, start on Connected.
	ConnectionStates() <-chan ConnectionState
}
