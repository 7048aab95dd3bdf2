package deptrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphSetUnit(t *testing.T) {
	t.Run("should_track_units_and_edges", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/b"}))
		require.NoError(t, g.SetUnit("lib/b", []string{"lib/c"}))

		assert.True(t, g.Contains("apps/a"))
		assert.True(t, g.Contains("lib/b"))
		// Imported units are created as placeholders.
		assert.True(t, g.Contains("lib/c"))
		assert.Equal(t, []string{"apps/a", "lib/b", "lib/c"}, g.Units())
	})

	t.Run("should_replace_import_set_on_reload", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/b"}))
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/c"}))

		assert.Equal(t, []string{"apps/a", "lib/c"}, g.Dependents("lib/c"))
		// The old edge is gone: b's only dependent was a.
		assert.Equal(t, []string{"lib/b"}, g.Dependents("lib/b"))
	})

	t.Run("should_reject_direct_cycle", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/b"}))
		err := g.SetUnit("lib/b", []string{"apps/a"})
		assert.ErrorIs(t, err, ErrImportCycle)
		// The graph is left unchanged.
		assert.Equal(t, []string{"lib/b"}, g.Dependents("lib/b"))
	})

	t.Run("should_reject_transitive_cycle", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("a", []string{"b"}))
		require.NoError(t, g.SetUnit("b", []string{"c"}))
		assert.ErrorIs(t, g.SetUnit("c", []string{"a"}), ErrImportCycle)
	})

	t.Run("should_ignore_self_import", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("a", []string{"a"}))
		assert.Equal(t, []string{"a"}, g.Dependents("a"))
	})
}

func TestGraphDependents(t *testing.T) {
	// a -> b -> c, with d standing alone beside them.
	build := func(t *testing.T) *Graph {
		t.Helper()
		g := NewGraph()
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/b"}))
		require.NoError(t, g.SetUnit("lib/b", []string{"lib/c"}))
		require.NoError(t, g.SetUnit("apps/d", nil))
		return g
	}

	t.Run("should_return_reverse_closure_including_self", func(t *testing.T) {
		g := build(t)
		assert.Equal(t, []string{"apps/a", "lib/b", "lib/c"}, g.Dependents("lib/c"))
		assert.Equal(t, []string{"apps/a", "lib/b"}, g.Dependents("lib/b"))
		assert.Equal(t, []string{"apps/a"}, g.Dependents("apps/a"))
	})

	t.Run("should_not_pull_in_unrelated_units", func(t *testing.T) {
		g := build(t)
		assert.NotContains(t, g.Dependents("lib/c"), "apps/d")
	})

	t.Run("should_return_nil_for_unknown_unit", func(t *testing.T) {
		g := build(t)
		assert.Nil(t, g.Dependents("lib/nowhere"))
	})
}

func TestGraphSorting(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.SetUnit("apps/a", []string{"lib/b", "lib/c"}))
	require.NoError(t, g.SetUnit("lib/b", []string{"lib/c"}))
	require.NoError(t, g.SetUnit("lib/c", nil))

	t.Run("should_order_forward_dependencies_first", func(t *testing.T) {
		order := g.SortForward([]string{"apps/a", "lib/b", "lib/c"})
		assert.Equal(t, []string{"lib/c", "lib/b", "apps/a"}, order)
	})

	t.Run("should_order_reverse_most_dependent_first", func(t *testing.T) {
		order := g.SortReverse([]string{"apps/a", "lib/b", "lib/c"})
		assert.Equal(t, []string{"apps/a", "lib/b", "lib/c"}, order)
	})

	t.Run("should_restrict_ordering_to_given_set", func(t *testing.T) {
		order := g.SortForward([]string{"apps/a", "lib/c"})
		assert.Equal(t, []string{"lib/c", "apps/a"}, order)
	})
}

func TestGraphGenerations(t *testing.T) {
	t.Run("should_invalidate_generation_on_unload", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("lib/b", nil))
		g.MarkLoaded("lib/b")
		require.True(t, g.Loaded("lib/b"))
		gen := g.Generation("lib/b")

		g.MarkUnloaded("lib/b")
		assert.False(t, g.Loaded("lib/b"))
		assert.Equal(t, gen+1, g.Generation("lib/b"))

		g.MarkLoaded("lib/b")
		assert.True(t, g.Loaded("lib/b"))
		assert.Equal(t, gen+1, g.Generation("lib/b"))
	})
}

func TestGraphRemove(t *testing.T) {
	t.Run("should_drop_unit_and_both_edge_directions", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.SetUnit("apps/a", []string{"lib/b"}))
		require.NoError(t, g.SetUnit("lib/b", []string{"lib/c"}))

		g.Remove("lib/b")
		assert.False(t, g.Contains("lib/b"))
		assert.Equal(t, []string{"apps/a"}, g.Dependents("apps/a"))
		assert.Equal(t, []string{"lib/c"}, g.Dependents("lib/c"))
	})
}
