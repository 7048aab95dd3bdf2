package deptrack

import "context"

// Unit is one reloadable load unit as reported by a Loader: its identifier
// and the units it currently imports directly. Import sets may change
// between generations, so the graph's edges are rebuilt from the freshly
// reported imports on every reload.
type Unit struct {
	ID      string
	Imports []string
}

// Loader imports load units on behalf of the tracker. Unit ids are
// slash-separated paths relative to the watched tree. Load is called for
// every unit of a reload pass in forward topological order; a Load error
// aborts the pass.
type Loader interface {
	// Units enumerates the root load units to track at startup.
	Units(ctx context.Context) ([]string, error)

	// Load imports (or re-imports) one unit and reports its current
	// import set. Implementations must not leave partial state visible on
	// error.
	Load(ctx context.Context, unitID string) (*Unit, error)
}

// AppController is the tracker's view of the app engine: enough to tear
// down the apps a reload affects and bring them back on fresh code. The
// engine implements it.
type AppController interface {
	// AppsForUnits returns, in registration order, the names of all apps
	// whose declaring unit is in the given set.
	AppsForUnits(units []string) []string

	// TerminateApp finalizes one app and cancels its callbacks.
	TerminateApp(ctx context.Context, name string) error

	// RestoreApp re-registers a terminated app using its stored
	// configuration and a factory freshly resolved from its load unit.
	RestoreApp(ctx context.Context, name string) error

	// RegisterUnitApps registers every app a newly tracked unit declares.
	RegisterUnitApps(ctx context.Context, unitID string) error
}
