// Package domovoy provides an automation-execution runtime. User-authored
// automation units ("apps") are registered under unique names with typed
// configuration, run concurrently, react to external state changes and
// events, and can be scheduled by time, interval, or astronomical events.
//
// The runtime is composed of four cooperating subsystems:
//
//   - the app engine (this package), which owns app identity, lifecycle
//     state, and failure isolation
//   - the callback/scheduler core (package scheduler), which unifies timers
//     and state/event subscriptions into one dispatch mechanism
//   - the dependency tracker (package deptrack), which maps source changes
//     to the minimal set of affected apps and drives hot reload
//   - the state cache (package statecache), which holds the latest known
//     value and attributes for every external entity
//
// Basic usage:
//
//	engine := domovoy.NewEngine(cache, sched, conn, source, logger)
//	err := engine.Register(ctx, domovoy.AppRegistration{
//		Name:    "porch-light",
//		UnitID:  "apps/lighting",
//		Factory: lighting.NewPorchLight,
//		Config:  cfg,
//	})
package domovoy

import (
	"context"

	"github.com/carlos-sarmiento/domovoy/scheduler"
)

// Invocation carries the delivery context of a callback into its target.
// Aliased here so app code only imports this package.
type Invocation = scheduler.Invocation

// App is the contract every automation unit implements. Instances are
// constructed by an AppFactory on every registration, including the
// registration that follows a reload, so Initialize must not assume it is
// the first invocation in the process lifetime.
type App interface {
	// Initialize is called once per instance while the app's record is in
	// StatusInitializing. This is where the app registers its callbacks
	// through the Runtime it was constructed with. An error (or panic)
	// moves the record to StatusFailed and cancels any callbacks the app
	// managed to register before failing.
	Initialize(ctx context.Context) error

	// Finalize is called while the record is in StatusFinalizing, after all
	// of the app's callbacks have been cancelled. It is best-effort: errors
	// and panics are logged, never propagated, and do not prevent the
	// record from reaching StatusTerminated. In-flight callback cleanup is
	// coordinated here.
	Finalize(ctx context.Context) error
}

// AppFactory constructs a fresh app instance wired to the given runtime.
// Factories are resolved again from the owning load unit after a reload so
// that new code is picked up.
type AppFactory func(rt *Runtime) App

// AppRegistration is the input to Engine.Register: a unique name, the load
// unit the app's code comes from, the factory that builds it, and its
// immutable configuration value. The configuration arrives fully parsed and
// validated; the engine never loads config files itself.
type AppRegistration struct {
	Name    string
	UnitID  string
	Factory AppFactory
	Config  any
}

// AppDefinition is one app declared by a load unit, as reported by an
// AppSource. Config is the value used when the tracker (re)registers the
// app for the first time; subsequent reloads keep the originally stored
// configuration.
type AppDefinition struct {
	Name    string
	Factory AppFactory
	Config  any
}

// AppSource resolves the apps a load unit currently declares. The engine
// consults it whenever it needs a fresh factory: on reload, after the
// dependency tracker has re-imported the unit, and when a new unit appears
// under the watched tree.
type AppSource interface {
	// AppsInUnit returns the app definitions the unit declares right now,
	// built from the unit's current generation of code.
	AppsInUnit(unitID string) ([]AppDefinition, error)
}

// AppInfo is a point-in-time view of one app record, suitable for status
// queries.
type AppInfo struct {
	Name      string    `json:"name"`
	UnitID    string    `json:"unit"`
	Status    AppStatus `json:"status"`
	Callbacks int       `json:"callbacks"`
}
