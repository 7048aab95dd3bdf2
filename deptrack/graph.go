package deptrack

import (
	"fmt"
	"sort"
	"sync"
)

// unitNode is one load unit in the dependency graph: its direct imports,
// the reverse edges (units that import it), a generation counter bumped on
// every unload, and whether its current generation is loaded. A stale
// generation is treated as invalid rather than relying on any language
// level unloading semantics.
type unitNode struct {
	id         string
	imports    map[string]struct{}
	importedBy map[string]struct{}
	generation uint64
	loaded     bool
}

// Graph is the directed acyclic graph over load units. It is always a DAG:
// SetUnit rejects any import set that would introduce a cycle.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*unitNode
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*unitNode)}
}

func (g *Graph) node(id string) *unitNode {
	n, ok := g.nodes[id]
	if !ok {
		n = &unitNode{
			id:         id,
			imports:    make(map[string]struct{}),
			importedBy: make(map[string]struct{}),
		}
		g.nodes[id] = n
	}
	return n
}

// SetUnit records (or replaces) a unit's direct import set, rebuilding both
// edge directions. Imported units not yet present are created as
// placeholders. If the new imports would close a cycle the graph is left
// unchanged and ErrImportCycle is returned.
func (g *Graph) SetUnit(id string, imports []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cycle := g.findCycle(id, imports); cycle != nil {
		return fmt.Errorf("%w: %v", ErrImportCycle, cycle)
	}

	n := g.node(id)
	for imp := range n.imports {
		delete(g.nodes[imp].importedBy, id)
	}
	n.imports = make(map[string]struct{}, len(imports))
	for _, imp := range imports {
		if imp == id {
			continue
		}
		n.imports[imp] = struct{}{}
		g.node(imp).importedBy[id] = struct{}{}
	}
	return nil
}

// findCycle checks whether giving id the candidate import set would create
// a cycle. The graph is acyclic beforehand, so any new cycle must pass
// through id: walk the candidate imports' transitive imports looking for a
// path back to id.
func (g *Graph) findCycle(id string, imports []string) []string {
	var walk func(from string, path []string) []string
	walk = func(from string, path []string) []string {
		if from == id {
			return append(path, id)
		}
		n, ok := g.nodes[from]
		if !ok {
			return nil
		}
		for imp := range n.imports {
			if cycle := walk(imp, append(path, from)); cycle != nil {
				return cycle
			}
		}
		return nil
	}
	for _, imp := range imports {
		if imp == id {
			continue
		}
		if cycle := walk(imp, []string{id}); cycle != nil {
			return cycle
		}
	}
	return nil
}

// Remove drops a unit and both directions of its edges.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for imp := range n.imports {
		delete(g.nodes[imp].importedBy, id)
	}
	for dep := range n.importedBy {
		delete(g.nodes[dep].imports, id)
	}
	delete(g.nodes, id)
}

// Contains reports whether the unit is tracked.
func (g *Graph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Units returns all tracked unit ids, sorted for determinism.
func (g *Graph) Units() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependents returns the reverse closure of a unit: the unit itself plus
// everything that transitively imports it. This is the affected set for a
// change to the unit.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	seen := map[string]struct{}{}
	var visit func(string)
	visit = func(cur string) {
		if _, done := seen[cur]; done {
			return
		}
		seen[cur] = struct{}{}
		for dep := range g.nodes[cur].importedBy {
			visit(dep)
		}
	}
	visit(id)

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// SortForward orders the given units dependencies-first: a unit appears
// after every unit it imports (restricted to the given set). This is the
// re-import order for a reload pass.
func (g *Graph) SortForward(ids []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var out []string
	seen := map[string]struct{}{}
	var visit func(string)
	visit = func(cur string) {
		if _, done := seen[cur]; done {
			return
		}
		seen[cur] = struct{}{}
		n, ok := g.nodes[cur]
		if ok {
			imps := make([]string, 0, len(n.imports))
			for imp := range n.imports {
				if _, in := inSet[imp]; in {
					imps = append(imps, imp)
				}
			}
			sort.Strings(imps)
			for _, imp := range imps {
				visit(imp)
			}
		}
		out = append(out, cur)
	}
	for _, id := range sorted {
		visit(id)
	}
	return out
}

// SortReverse orders the given units most-dependent-first: the unload order
// for a reload pass, so no unit is torn down while something that imports
// it is still considered loaded.
func (g *Graph) SortReverse(ids []string) []string {
	forward := g.SortForward(ids)
	out := make([]string, len(forward))
	for i, id := range forward {
		out[len(forward)-1-i] = id
	}
	return out
}

// MarkUnloaded invalidates a unit's current generation and bumps the
// counter. Anything still holding the old generation is stale.
func (g *Graph) MarkUnloaded(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[id]; ok {
		n.loaded = false
		n.generation++
	}
}

// MarkLoaded records that the unit's current generation is live.
func (g *Graph) MarkLoaded(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[id]; ok {
		n.loaded = true
	}
}

// Loaded reports whether the unit's current generation is live.
func (g *Graph) Loaded(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	return ok && n.loaded
}

// Generation returns the unit's generation counter.
func (g *Graph) Generation(id string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n, ok := g.nodes[id]; ok {
		return n.generation
	}
	return 0
}
