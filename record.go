package domovoy

// AppStatus is the lifecycle state of an app record. It is the single
// source of truth for where an app is in its lifecycle; transitions are
// strictly forward except reload, which drives a running app through
// finalizing and terminated and then re-enters at created for a fresh
// instance under the same name.
type AppStatus string

const (
	// StatusCreated indicates the record exists and the instance has been
	// constructed but not initialized.
	StatusCreated AppStatus = "created"
	// StatusInitializing indicates the app's Initialize is in progress.
	StatusInitializing AppStatus = "initializing"
	// StatusRunning indicates the app initialized successfully and its
	// callbacks are live.
	StatusRunning AppStatus = "running"
	// StatusFailed is terminal for an instance, reachable only from
	// StatusInitializing.
	StatusFailed AppStatus = "failed"
	// StatusFinalizing indicates the app's callbacks have been cancelled
	// and its Finalize is in progress.
	StatusFinalizing AppStatus = "finalizing"
	// StatusTerminated indicates the instance is gone; the record remains
	// visible to status queries and its name may be registered again.
	StatusTerminated AppStatus = "terminated"
)

// AppRecord tracks one registered app: its identity, configuration, current
// lifecycle state, and current instance. Records are created on
// registration and removed only by explicit unregistration; a reload
// replaces the instance in place, preserving the identity of the
// name-to-record mapping.
type AppRecord struct {
	Name   string
	UnitID string
	Config any

	status  AppStatus
	factory AppFactory
	app     App
	runtime *Runtime
}

// Status returns the record's current lifecycle state. Callers must hold
// the engine's registry lock via Engine accessors; apps observe status only
// through Engine.Snapshot.
func (r *AppRecord) Status() AppStatus { return r.status }
