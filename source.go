package domovoy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/carlos-sarmiento/domovoy/deptrack"
)

// UnitDefinition declares one load unit for a StaticSource: the apps it
// provides and the units it imports.
type UnitDefinition struct {
	ID      string
	Imports []string
	Apps    []AppDefinition
}

// StaticSource is an in-process app source: load units and their apps are
// declared in code rather than discovered on disk. It implements both the
// engine's AppSource and the tracker's Loader, so the same reload
// machinery drives statically declared units. Each Load bumps the unit's
// generation, which stands in for re-importing source: factories resolved
// after a reload observe the new generation.
type StaticSource struct {
	mu          sync.RWMutex
	units       map[string]*UnitDefinition
	generations map[string]int
}

// NewStaticSource builds a source from unit declarations. Later
// declarations of the same unit id replace earlier ones.
func NewStaticSource(units ...UnitDefinition) *StaticSource {
	s := &StaticSource{
		units:       make(map[string]*UnitDefinition, len(units)),
		generations: make(map[string]int, len(units)),
	}
	for i := range units {
		u := units[i]
		s.units[u.ID] = &u
	}
	return s
}

// Declare adds or replaces a unit definition at runtime. The tracker picks
// the change up on the unit's next reload.
func (s *StaticSource) Declare(unit UnitDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = &unit
}

// AppsInUnit returns the app definitions the unit currently declares.
func (s *StaticSource) AppsInUnit(unitID string) ([]AppDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[unitID]
	if !ok {
		return nil, fmt.Errorf("unit %q: %w", unitID, ErrUnitNotFound)
	}
	defs := make([]AppDefinition, len(u.Apps))
	copy(defs, u.Apps)
	return defs, nil
}

// Units enumerates every declared unit id, sorted for deterministic
// bootstrap order.
func (s *StaticSource) Units(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reports the unit's current import set and advances its generation.
func (s *StaticSource) Load(ctx context.Context, unitID string) (*deptrack.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[unitID]
	if !ok {
		return nil, fmt.Errorf("unit %q: %w", unitID, ErrUnitNotFound)
	}
	s.generations[unitID]++

	imports := make([]string, len(u.Imports))
	copy(imports, u.Imports)
	return &deptrack.Unit{ID: unitID, Imports: imports}, nil
}

// Generation reports how many times the unit has been loaded.
func (s *StaticSource) Generation(unitID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[unitID]
}
