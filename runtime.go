package domovoy

import (
	"github.com/carlos-sarmiento/domovoy/scheduler"
	"github.com/carlos-sarmiento/domovoy/statecache"
)

// Runtime is the set of capabilities injected into every app instance at
// construction time. Shared functionality is composed, not inherited: each
// capability is a separate collaborator wired here by the engine. Apps do
// not share mutable state with each other; app-to-app signaling goes
// through the state cache or event dispatch, never direct references.
type Runtime struct {
	// Name is the app's unique registry name.
	Name string

	// Config is the app's immutable configuration value, provided fully
	// parsed at registration time.
	Config any

	// Callbacks registers triggers and subscriptions owned by this app.
	Callbacks *scheduler.OwnerHandle

	// State reads the entity state cache. Apps never write to it.
	State *statecache.Cache

	// Conn calls out to the external platform.
	Conn Connector

	// Log is scoped to the app's name.
	Log Logger
}
