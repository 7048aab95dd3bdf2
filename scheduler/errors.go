package scheduler

import (
	"errors"
)

// Scheduler errors. Spec validation failures are reported at registration
// time, wrapped in ErrInvalidTriggerSpec; nothing is rejected at dispatch
// time.
var (
	// ErrInvalidTriggerSpec wraps every trigger or subscription spec
	// rejected at registration.
	ErrInvalidTriggerSpec = errors.New("invalid trigger spec")

	// ErrEmptyEntityList is returned when a state or attribute
	// subscription names no entities.
	ErrEmptyEntityList = errors.New("entity list is empty")

	// ErrEmptyEventList is returned when an event subscription names no
	// events.
	ErrEmptyEventList = errors.New("event list is empty")

	// ErrNonPositiveInterval is returned for recurring triggers with a
	// zero or negative interval.
	ErrNonPositiveInterval = errors.New("interval must be positive")

	// ErrScheduleInPast is returned when an absolute one-shot trigger
	// names a time that has already passed.
	ErrScheduleInPast = errors.New("cannot schedule a callback in the past")

	// ErrUnknownSunEvent is returned for a sun event outside
	// {dawn, sunrise, noon, sunset, dusk}.
	ErrUnknownSunEvent = errors.New("unknown sun event")

	// ErrNoLocation is returned for sun-relative triggers when the
	// scheduler has no configured location.
	ErrNoLocation = errors.New("no location configured for sun events")

	// ErrInvalidTarget is returned when a callback target's signature is
	// not one the argument binder supports.
	ErrInvalidTarget = errors.New("unsupported callback target signature")

	// ErrUnknownBindingField is returned when a target declares a
	// parameter name outside the known superset and the bound extras.
	ErrUnknownBindingField = errors.New("unknown binding field")

	// ErrNotStarted is returned by Stop when the scheduler never started.
	ErrNotStarted = errors.New("scheduler not started")
)
