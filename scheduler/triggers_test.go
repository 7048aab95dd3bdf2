package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should_fire_once_at_absolute_time", func(t *testing.T) {
		at := now.Add(time.Hour)
		trig, err := newAtTrigger(at, now)
		require.NoError(t, err)

		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, at, first)

		_, ok := trig.Next(at)
		assert.False(t, ok)
	})

	t.Run("should_reject_time_in_the_past", func(t *testing.T) {
		_, err := newAtTrigger(now.Add(-time.Second), now)
		assert.ErrorIs(t, err, ErrInvalidTriggerSpec)
		assert.ErrorIs(t, err, ErrScheduleInPast)
	})

	t.Run("should_accept_time_equal_to_now", func(t *testing.T) {
		_, err := newAtTrigger(now, now)
		assert.NoError(t, err)
	})
}

func TestIntervalTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should_anchor_first_fire_at_registration_for_zero_start", func(t *testing.T) {
		trig, err := newIntervalTrigger(5*time.Minute, time.Time{}, now)
		require.NoError(t, err)

		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, now, first)
	})

	t.Run("should_anchor_first_fire_at_future_start", func(t *testing.T) {
		start := now.Add(2 * time.Minute)
		trig, err := newIntervalTrigger(5*time.Minute, start, now)
		require.NoError(t, err)

		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, start, first)
	})

	t.Run("should_advance_past_start_to_next_boundary", func(t *testing.T) {
		start := now.Add(-7 * time.Minute)
		trig, err := newIntervalTrigger(5*time.Minute, start, now)
		require.NoError(t, err)

		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, start.Add(10*time.Minute), first)
	})

	t.Run("should_not_drift_with_dispatch_latency", func(t *testing.T) {
		trig, err := newIntervalTrigger(5*time.Minute, now, now)
		require.NoError(t, err)

		// Firing observed 3s late still yields the next exact boundary.
		next, ok := trig.Next(now.Add(3 * time.Second))
		require.True(t, ok)
		assert.Equal(t, now.Add(5*time.Minute), next)
	})

	t.Run("should_reject_non_positive_interval", func(t *testing.T) {
		_, err := newIntervalTrigger(0, time.Time{}, now)
		assert.ErrorIs(t, err, ErrNonPositiveInterval)

		_, err = newIntervalTrigger(-time.Second, time.Time{}, now)
		assert.ErrorIs(t, err, ErrNonPositiveInterval)
	})
}

func TestCronTrigger(t *testing.T) {
	t.Run("should_follow_standard_cron_expression", func(t *testing.T) {
		trig, err := newCronTrigger("30 6 * * *")
		require.NoError(t, err)

		now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.Local)
		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, time.Local), first)
	})

	t.Run("should_reject_malformed_expression", func(t *testing.T) {
		_, err := newCronTrigger("not a cron line")
		assert.ErrorIs(t, err, ErrInvalidTriggerSpec)
	})
}

func TestDailyTrigger(t *testing.T) {
	t.Run("should_fire_every_day_at_fixed_time", func(t *testing.T) {
		trig, err := newDailyTrigger(23, 15)
		require.NoError(t, err)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
		first, err := trig.First(now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 23, 15, 0, 0, time.Local), first)

		next, ok := trig.Next(first)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 2, 23, 15, 0, 0, time.Local), next)
	})

	t.Run("should_reject_out_of_range_time", func(t *testing.T) {
		_, err := newDailyTrigger(24, 0)
		assert.ErrorIs(t, err, ErrInvalidTriggerSpec)

		_, err = newDailyTrigger(0, 60)
		assert.ErrorIs(t, err, ErrInvalidTriggerSpec)
	})
}

func TestSunTrigger(t *testing.T) {
	// Madrid: sun events occur year-round.
	loc := &Location{Latitude: 40.4168, Longitude: -3.7038, Elevation: 650}

	t.Run("should_compute_next_sunset", func(t *testing.T) {
		trig, err := newSunTrigger(loc, SunEventSunset, 0)
		require.NoError(t, err)

		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		first, err := trig.First(now)
		require.NoError(t, err)
		assert.True(t, first.After(now))
		assert.True(t, first.Before(now.Add(24*time.Hour)))
	})

	t.Run("should_apply_negative_offset_before_event", func(t *testing.T) {
		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

		plain, err := newSunTrigger(loc, SunEventSunrise, 0)
		require.NoError(t, err)
		early, err := newSunTrigger(loc, SunEventSunrise, -30*time.Minute)
		require.NoError(t, err)

		base, err := plain.First(now)
		require.NoError(t, err)
		shifted, err := early.First(now)
		require.NoError(t, err)
		assert.Equal(t, base.Add(-30*time.Minute), shifted)
	})

	t.Run("should_recompute_for_following_day", func(t *testing.T) {
		trig, err := newSunTrigger(loc, SunEventNoon, 0)
		require.NoError(t, err)

		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		first, err := trig.First(now)
		require.NoError(t, err)

		next, ok := trig.Next(first)
		require.True(t, ok)
		assert.True(t, next.After(first))
		diff := next.Sub(first)
		assert.InDelta(t, float64(24*time.Hour), float64(diff), float64(5*time.Minute))
	})

	t.Run("should_reject_unknown_event", func(t *testing.T) {
		_, err := newSunTrigger(loc, SunEvent("midnight"), 0)
		assert.ErrorIs(t, err, ErrUnknownSunEvent)
	})

	t.Run("should_reject_missing_location", func(t *testing.T) {
		_, err := newSunTrigger(nil, SunEventSunset, 0)
		assert.ErrorIs(t, err, ErrNoLocation)
	})
}
