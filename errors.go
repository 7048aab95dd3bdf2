package domovoy

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	// ErrDuplicateAppName is returned by Register when a non-terminated
	// record already holds the requested name.
	ErrDuplicateAppName = errors.New("app name already registered")

	// ErrAppNotFound is returned when an operation names an app the
	// registry has never seen.
	ErrAppNotFound = errors.New("app not found")

	// ErrAppNotRunning is returned by Terminate when the record is not in
	// a terminable state (running or failed).
	ErrAppNotRunning = errors.New("app is not running")

	// ErrNilFactory is returned by Register when the registration carries
	// no factory.
	ErrNilFactory = errors.New("app factory is nil")

	// ErrUnitNotFound is returned by an AppSource when it does not know
	// the requested load unit.
	ErrUnitNotFound = errors.New("load unit not found")

	// ErrAppNotDeclared is returned when a reload cannot find the app in
	// the freshly loaded unit (the new code no longer declares it).
	ErrAppNotDeclared = errors.New("app not declared by load unit")
)

// InitializationError wraps any failure (error or recovered panic) from an
// app's Initialize path. The app's record is left in StatusFailed and the
// app is absent from the running set until terminated and re-registered.
type InitializationError struct {
	App string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("app %q failed to initialize: %v", e.App, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
