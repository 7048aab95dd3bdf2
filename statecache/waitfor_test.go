package statecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFor(t *testing.T) {
	t.Run("should_resolve_immediately_when_already_in_state", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, time.Now().Add(-time.Minute))

		err := cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 0, time.Second)
		assert.NoError(t, err)
	})

	t.Run("should_credit_time_already_spent_in_state", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, time.Now().Add(-time.Minute))

		// Held for a minute already, so a 50ms minimum is met at once.
		start := time.Now()
		err := cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 50*time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("should_resolve_when_state_arrives", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "off", nil, time.Now())

		done := make(chan error, 1)
		go func() {
			done <- cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 0, 2*time.Second)
		}()

		time.Sleep(30 * time.Millisecond)
		cache.Ingest("light.porch", "on", nil, time.Now())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wait did not resolve")
		}
	})

	t.Run("should_reset_duration_clock_when_state_reverts", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "off", nil, time.Now())

		done := make(chan error, 1)
		start := time.Now()
		go func() {
			done <- cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 120*time.Millisecond, 2*time.Second)
		}()

		// on, then off before the hold elapses, then on again: the wait must
		// resolve ~120ms after the second on, not the first.
		time.Sleep(20 * time.Millisecond)
		cache.Ingest("light.porch", "on", nil, time.Now())
		time.Sleep(60 * time.Millisecond)
		cache.Ingest("light.porch", "off", nil, time.Now())
		time.Sleep(20 * time.Millisecond)
		cache.Ingest("light.porch", "on", nil, time.Now())

		select {
		case err := <-done:
			require.NoError(t, err)
			assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("wait did not resolve")
		}
	})

	t.Run("should_time_out_when_state_never_arrives", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "off", nil, time.Now())

		err := cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 0, 60*time.Millisecond)
		assert.ErrorIs(t, err, ErrWaitTimeout)
	})

	t.Run("should_return_context_error_on_cancel", func(t *testing.T) {
		cache := New(&testLogger{})
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- cache.WaitFor(ctx, "light.porch", []string{"on"}, 0, 0)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("wait did not resolve")
		}
	})

	t.Run("should_ignore_updates_for_other_entities", func(t *testing.T) {
		cache := New(&testLogger{})

		done := make(chan error, 1)
		go func() {
			done <- cache.WaitFor(context.Background(), "light.porch", []string{"on"}, 0, 150*time.Millisecond)
		}()

		time.Sleep(20 * time.Millisecond)
		cache.Ingest("light.kitchen", "on", nil, time.Now())

		err := <-done
		assert.ErrorIs(t, err, ErrWaitTimeout)
	})
}
