package deptrack

import (
	"errors"
	"fmt"
)

// Tracker errors
var (
	// ErrUnknownUnit is returned by a Loader when asked for a unit it does
	// not recognize, and by the graph for ids it has never seen.
	ErrUnknownUnit = errors.New("unknown load unit")

	// ErrImportCycle is returned when a unit's import set would make the
	// load-unit graph cyclic. Cycles are rejected at build time, never
	// silently tolerated.
	ErrImportCycle = errors.New("import cycle between load units")

	// ErrNotStarted is returned by Stop when the tracker never started.
	ErrNotStarted = errors.New("dependency tracker not started")
)

// ReloadError reports a failed reload pass: re-importing Unit raised Err,
// the pass was aborted, and the affected apps were left terminated rather
// than restarted. It is surfaced for operator visibility and does not
// crash the process.
type ReloadError struct {
	Unit string
	Err  error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload aborted at unit %q: %v", e.Unit, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }
