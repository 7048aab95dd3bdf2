package scheduler

import (
	"fmt"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// SunEvent names one of the astronomical events a sun-relative trigger can
// anchor to. The set is closed.
type SunEvent string

const (
	SunEventDawn    SunEvent = "dawn"
	SunEventSunrise SunEvent = "sunrise"
	SunEventNoon    SunEvent = "noon"
	SunEventSunset  SunEvent = "sunset"
	SunEventDusk    SunEvent = "dusk"
)

// civilDepression is the solar depression angle, in degrees, used for dawn
// and dusk.
const civilDepression = 6.0

// Location is the geographic position sun event times are computed for.
type Location struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

func (l Location) observer() astral.Observer {
	return astral.Observer{Latitude: l.Latitude, Longitude: l.Longitude, Elevation: l.Elevation}
}

// sunEventTime computes the event's time on the given calendar day.
func sunEventTime(obs astral.Observer, event SunEvent, day time.Time) (time.Time, error) {
	switch event {
	case SunEventDawn:
		return astral.Dawn(obs, day, civilDepression)
	case SunEventSunrise:
		return astral.Sunrise(obs, day)
	case SunEventNoon:
		return astral.Noon(obs, day), nil
	case SunEventSunset:
		return astral.Sunset(obs, day)
	case SunEventDusk:
		return astral.Dusk(obs, day, civilDepression)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownSunEvent, event)
	}
}

// sunTrigger fires daily relative to an astronomical event. The fire time
// is recomputed every cycle because event times shift day by day; a
// negative offset fires before the event. Days on which the event does not
// occur at the configured latitude are skipped.
type sunTrigger struct {
	obs    astral.Observer
	event  SunEvent
	offset time.Duration
}

func newSunTrigger(loc *Location, event SunEvent, offset time.Duration) (Trigger, error) {
	if loc == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTriggerSpec, ErrNoLocation)
	}
	switch event {
	case SunEventDawn, SunEventSunrise, SunEventNoon, SunEventSunset, SunEventDusk:
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidTriggerSpec, ErrUnknownSunEvent, event)
	}
	return &sunTrigger{obs: loc.observer(), event: event, offset: offset}, nil
}

func (t *sunTrigger) First(now time.Time) (time.Time, error) {
	next, ok := t.nextAfter(now)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: sun event %q never occurs at this location", ErrInvalidTriggerSpec, t.event)
	}
	return next, nil
}

func (t *sunTrigger) Next(now time.Time) (time.Time, bool) {
	return t.nextAfter(now)
}

func (t *sunTrigger) nextAfter(now time.Time) (time.Time, bool) {
	day := now
	for i := 0; i < 366; i++ {
		eventTime, err := sunEventTime(t.obs, t.event, day)
		if err == nil {
			fireAt := eventTime.Add(t.offset)
			if fireAt.After(now) {
				return fireAt, true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}
