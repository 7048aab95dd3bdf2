package statecache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger records messages so tests can assert on stale-drop logging.
type testLogger struct {
	mu     sync.Mutex
	debugs []string
	warns  []string
}

func (l *testLogger) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, msg)
}

func (l *testLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *testLogger) debugCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.debugs)
}

func TestCacheIngest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should_store_and_return_entity_state", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", map[string]any{"brightness": 200}, base)

		assert.Equal(t, "on", cache.Get("light.porch"))
		entry, err := cache.GetFull("light.porch")
		require.NoError(t, err)
		assert.Equal(t, "on", entry.State)
		assert.Equal(t, 200, entry.Attributes["brightness"])
		assert.Equal(t, base, entry.LastChanged)
		assert.Equal(t, base, entry.LastUpdated)
	})

	t.Run("should_return_unknown_for_unseen_entity", func(t *testing.T) {
		cache := New(&testLogger{})
		assert.Equal(t, StateUnknown, cache.Get("light.nowhere"))

		_, err := cache.GetFull("light.nowhere")
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})

	t.Run("should_drop_update_older_than_entry", func(t *testing.T) {
		logger := &testLogger{}
		cache := New(logger)
		cache.Ingest("light.porch", "on", nil, base)
		cache.Ingest("light.porch", "off", nil, base.Add(-time.Second))

		assert.Equal(t, "on", cache.Get("light.porch"))
		assert.Equal(t, 1, logger.debugCount())
	})

	t.Run("should_drop_update_with_equal_timestamp_silently", func(t *testing.T) {
		logger := &testLogger{}
		cache := New(logger)
		cache.Ingest("light.porch", "on", nil, base)
		cache.Ingest("light.porch", "off", nil, base)

		assert.Equal(t, "on", cache.Get("light.porch"))
		assert.Equal(t, 0, logger.debugCount())
	})

	t.Run("should_preserve_last_changed_when_state_value_unchanged", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("sensor.temp", "21.5", map[string]any{"unit": "C"}, base)
		cache.Ingest("sensor.temp", "21.5", map[string]any{"unit": "C", "battery": 80}, base.Add(time.Minute))

		entry, err := cache.GetFull("sensor.temp")
		require.NoError(t, err)
		assert.Equal(t, base, entry.LastChanged)
		assert.Equal(t, base.Add(time.Minute), entry.LastUpdated)
		assert.Equal(t, 80, entry.Attributes["battery"])
	})

	t.Run("should_advance_last_changed_on_new_state_value", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, base)
		cache.Ingest("light.porch", "off", nil, base.Add(time.Minute))

		entry, err := cache.GetFull("light.porch")
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Minute), entry.LastChanged)
		assert.Equal(t, base.Add(time.Minute), entry.LastUpdated)
	})

	t.Run("should_copy_attributes_on_read", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", map[string]any{"brightness": 200}, base)

		entry, err := cache.GetFull("light.porch")
		require.NoError(t, err)
		entry.Attributes["brightness"] = 10

		fresh, err := cache.GetFull("light.porch")
		require.NoError(t, err)
		assert.Equal(t, 200, fresh.Attributes["brightness"])
	})
}

func TestCacheEvict(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should_remove_entity", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, base)
		cache.Evict("light.porch", base.Add(time.Second))

		assert.False(t, cache.Exists("light.porch"))
		assert.Equal(t, StateUnknown, cache.Get("light.porch"))
	})

	t.Run("should_notify_subscribers_with_nil_new", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, base)

		ch, cancel := cache.Subscribe()
		defer cancel()

		cache.Evict("light.porch", base.Add(time.Second))
		change := <-ch
		assert.Equal(t, "light.porch", change.EntityID)
		assert.Nil(t, change.New)
		require.NotNil(t, change.Old)
		assert.Equal(t, "on", change.Old.State)
	})

	t.Run("should_ignore_unknown_entity", func(t *testing.T) {
		cache := New(&testLogger{})
		ch, cancel := cache.Subscribe()
		defer cancel()

		cache.Evict("light.nowhere", base)
		select {
		case <-ch:
			t.Fatal("unexpected notification for unknown entity")
		case <-time.After(20 * time.Millisecond):
		}
	})
}

func TestCacheSubscribe(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should_notify_only_on_replacement", func(t *testing.T) {
		cache := New(&testLogger{})
		cache.Ingest("light.porch", "on", nil, base)

		ch, cancel := cache.Subscribe()
		defer cancel()

		cache.Ingest("light.porch", "off", nil, base.Add(-time.Second)) // stale
		cache.Ingest("light.porch", "on", nil, base)                    // duplicate
		cache.Ingest("light.porch", "off", nil, base.Add(time.Second))

		change := <-ch
		assert.Equal(t, "off", change.New.State)
		assert.Equal(t, "on", change.Old.State)
		select {
		case c := <-ch:
			t.Fatalf("unexpected extra notification: %+v", c)
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("should_report_nil_old_on_first_sight", func(t *testing.T) {
		cache := New(&testLogger{})
		ch, cancel := cache.Subscribe()
		defer cancel()

		cache.Ingest("light.porch", "on", nil, base)
		change := <-ch
		assert.Nil(t, change.Old)
		assert.Equal(t, "on", change.New.State)
	})

	t.Run("should_drop_oldest_when_subscriber_lags", func(t *testing.T) {
		logger := &testLogger{}
		cache := New(logger)
		ch, cancel := cache.Subscribe()
		defer cancel()

		for i := 0; i < 300; i++ {
			cache.Ingest("sensor.counter", "v", nil, base.Add(time.Duration(i+1)*time.Second))
		}
		// The first pending change was dropped to make room; the stream is
		// still consumable.
		first := <-ch
		assert.True(t, first.Timestamp.After(base.Add(time.Second)))
	})

	t.Run("should_stop_notifying_after_cancel", func(t *testing.T) {
		cache := New(&testLogger{})
		ch, cancel := cache.Subscribe()
		cancel()

		cache.Ingest("light.porch", "on", nil, base)
		_, open := <-ch
		assert.False(t, open)
	})
}

func TestEntryTimeInState(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{State: "on", LastChanged: base}

	t.Run("should_measure_from_last_changed", func(t *testing.T) {
		assert.Equal(t, 5*time.Minute, entry.TimeInState(base.Add(5*time.Minute)))
	})

	t.Run("should_match_accepted_states_with_duration", func(t *testing.T) {
		assert.True(t, entry.InStateForAtLeast([]string{"on"}, 5*time.Minute, base.Add(5*time.Minute)))
		assert.False(t, entry.InStateForAtLeast([]string{"on"}, 5*time.Minute, base.Add(4*time.Minute)))
		assert.False(t, entry.InStateForAtLeast([]string{"off"}, 0, base.Add(time.Hour)))
	})
}

func TestEntityIDsByAttribute(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := New(&testLogger{})
	cache.Ingest("light.porch", "on", map[string]any{"area": "outside"}, base)
	cache.Ingest("light.kitchen", "off", map[string]any{"area": "inside"}, base)
	cache.Ingest("sensor.temp", "21", nil, base)

	t.Run("should_filter_by_attribute_presence", func(t *testing.T) {
		ids := cache.EntityIDsByAttribute("area", nil)
		assert.ElementsMatch(t, []string{"light.porch", "light.kitchen"}, ids)
	})

	t.Run("should_filter_by_attribute_value", func(t *testing.T) {
		ids := cache.EntityIDsByAttribute("area", "outside")
		assert.Equal(t, []string{"light.porch"}, ids)
	})
}
