package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger computes fire times for a time-based callback entry. After an
// entry fires, the dispatch loop asks the trigger for the following fire
// time; a false second return value means the trigger is exhausted and the
// entry is removed.
type Trigger interface {
	// First returns the initial fire time for an entry registered at now.
	First(now time.Time) (time.Time, error)

	// Next returns the fire time after a firing observed at now, or false
	// when the trigger will never fire again.
	Next(now time.Time) (time.Time, bool)
}

// atTrigger fires once at an absolute instant.
type atTrigger struct {
	at time.Time
}

func newAtTrigger(at, now time.Time) (Trigger, error) {
	if at.Before(now) {
		return nil, fmt.Errorf("%w: %w (at=%s, now=%s)", ErrInvalidTriggerSpec, ErrScheduleInPast,
			at.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return &atTrigger{at: at}, nil
}

func (t *atTrigger) First(time.Time) (time.Time, error) { return t.at, nil }
func (t *atTrigger) Next(time.Time) (time.Time, bool)   { return time.Time{}, false }

// intervalTrigger fires repeatedly every interval. A zero start anchors the
// first fire at registration time ("now"); a non-zero start anchors it
// there, past starts advancing to the next boundary.
type intervalTrigger struct {
	every time.Duration
	start time.Time
}

func newIntervalTrigger(every time.Duration, start, now time.Time) (Trigger, error) {
	if every <= 0 {
		return nil, fmt.Errorf("%w: %w (interval=%s)", ErrInvalidTriggerSpec, ErrNonPositiveInterval, every)
	}
	if start.IsZero() {
		start = now
	}
	return &intervalTrigger{every: every, start: start}, nil
}

func (t *intervalTrigger) First(now time.Time) (time.Time, error) {
	next := t.start
	for next.Before(now) {
		next = next.Add(t.every)
	}
	return next, nil
}

func (t *intervalTrigger) Next(now time.Time) (time.Time, bool) {
	// Anchor arithmetic on the start boundary so the cadence does not
	// drift with dispatch latency.
	elapsed := now.Sub(t.start)
	steps := elapsed/t.every + 1
	return t.start.Add(steps * t.every), true
}

// cronTrigger fires on a standard cron schedule. Daily fixed-time triggers
// are expressed through it.
type cronTrigger struct {
	sched cron.Schedule
}

func newCronTrigger(expr string) (Trigger, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing cron expression %q: %w", ErrInvalidTriggerSpec, expr, err)
	}
	return &cronTrigger{sched: sched}, nil
}

func newDailyTrigger(hour, minute int) (Trigger, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: daily time %02d:%02d out of range", ErrInvalidTriggerSpec, hour, minute)
	}
	return newCronTrigger(fmt.Sprintf("%d %d * * *", minute, hour))
}

func (t *cronTrigger) First(now time.Time) (time.Time, error) { return t.sched.Next(now), nil }
func (t *cronTrigger) Next(now time.Time) (time.Time, bool)   { return t.sched.Next(now), true }
