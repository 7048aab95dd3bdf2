package domovoy

import (
	"context"
	"sync"
	"time"
)

// LoopbackConnector is an in-memory Connector: service calls and fired
// events loop straight back into the runtime's streams. It backs tests
// and platform-less runs, and gives service handlers a place to mutate
// entity state the way a real platform would.
type LoopbackConnector struct {
	mu       sync.RWMutex
	states   map[string]StateUpdate
	services map[string]ServiceHandler

	updates    chan StateUpdate
	events     chan PlatformEvent
	connStates chan ConnectionState
}

// ServiceHandler handles one domain.service invocation on a
// LoopbackConnector.
type ServiceHandler func(ctx context.Context, data map[string]any) (map[string]any, error)

// NewLoopbackConnector builds an empty loopback connector.
func NewLoopbackConnector() *LoopbackConnector {
	return &LoopbackConnector{
		states:     make(map[string]StateUpdate),
		services:   make(map[string]ServiceHandler),
		updates:    make(chan StateUpdate, 64),
		events:     make(chan PlatformEvent, 64),
		connStates: make(chan ConnectionState, 4),
	}
}

// SetState records an entity's state and pushes the change onto the
// update stream.
func (c *LoopbackConnector) SetState(entityID, state string, attributes map[string]any) {
	u := StateUpdate{
		EntityID:   entityID,
		State:      state,
		Attributes: attributes,
		Timestamp:  time.Now(),
	}
	c.mu.Lock()
	c.states[entityID] = u
	c.mu.Unlock()
	c.updates <- u
}

// DeleteState removes an entity and pushes its eviction onto the update
// stream.
func (c *LoopbackConnector) DeleteState(entityID string) {
	c.mu.Lock()
	delete(c.states, entityID)
	c.mu.Unlock()
	c.updates <- StateUpdate{EntityID: entityID, Timestamp: time.Now(), Deleted: true}
}

// HandleService registers the handler invoked for domain.service calls.
func (c *LoopbackConnector) HandleService(domain, service string, h ServiceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[domain+"."+service] = h
}

// SetConnected pushes a link transition, driving the engine's app
// supervision.
func (c *LoopbackConnector) SetConnected(up bool) {
	if up {
		c.connStates <- Connected
	} else {
		c.connStates <- Disconnected
	}
}

func (c *LoopbackConnector) GetStates(ctx context.Context) ([]StateUpdate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StateUpdate, 0, len(c.states))
	for _, u := range c.states {
		out = append(out, u)
	}
	return out, nil
}

func (c *LoopbackConnector) Invoke(ctx context.Context, domain, service string, data map[string]any) (map[string]any, error) {
	c.mu.RLock()
	h, ok := c.services[domain+"."+service]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return h(ctx, data)
}

func (c *LoopbackConnector) FireEvent(ctx context.Context, name string, data map[string]any) error {
	c.events <- PlatformEvent{Name: name, Data: data}
	return nil
}

func (c *LoopbackConnector) Updates() <-chan StateUpdate              { return c.updates }
func (c *LoopbackConnector) Events() <-chan PlatformEvent             { return c.events }
func (c *LoopbackConnector) ConnectionStates() <-chan ConnectionState { return c.connStates }
