// Package graph builds the dependency graph between generated units: a
// unit depends on another when one of its fields is a serializable type
// owned by the other.
package graph

import (
	"sort"
)

// Unit is a node of the graph: a source file, the serializable types it
// owns, and the serializable types its fields reference.
type Unit struct {
	Path    string
	Defines []string
	Uses    []string
}

// Dependency is an edge from the unit referencing types to the unit that
// owns them.
type Dependency struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Types  []string `json:"types"`
}

// BuildGraph creates dependency edges from cross-unit type references.
// Edges and their type lists are sorted.
func BuildGraph(units []Unit) []Dependency {
	// Build definition index: type name → unit that owns it
	owner := make(map[string]string)
	for i := range units {
		for _, t := range units[i].Defines {
			if _, ok := owner[t]; !ok {
				owner[t] = units[i].Path
			}
		}
	}

	// Build edges: source → target → list of types
	type edgeKey struct{ src, tgt string }
	edgeTypes := make(map[edgeKey][]string)

	for i := range units {
		u := &units[i]
		for _, t := range u.Uses {
			def, ok := owner[t]
			if !ok || def == u.Path {
				continue // unknown or no self-edges
			}
			key := edgeKey{u.Path, def}
			if !contains(edgeTypes[key], t) {
				edgeTypes[key] = append(edgeTypes[key], t)
			}
		}
	}

	var deps []Dependency
	for key, types := range edgeTypes {
		sort.Strings(types)
		deps = append(deps, Dependency{
			Source: key.src,
			Target: key.tgt,
			Types:  types,
		})
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

// From returns the edges leaving path.
func From(deps []Dependency, path string) []Dependency {
	var out []Dependency
	for _, d := range deps {
		if d.Source == path {
			out = append(out, d)
		}
	}
	return out
}

// Cycles returns the groups of units that reference each other, directly
// or transitively, each sorted, in order of their first member. Units in a
// cycle compile only because every unit forward-declares what it uses.
func Cycles(deps []Dependency) [][]string {
	adj := make(map[string][]string)
	nodes := make(map[string]struct{})
	for _, d := range deps {
		adj[d.Source] = append(adj[d.Source], d.Target)
		nodes[d.Source] = struct{}{}
		nodes[d.Target] = struct{}{}
	}

	// Tarjan's strongly connected components
	index := 0
	indices := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], indices[w])
			}
		}

		if low[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) > 1 {
				sort.Strings(comp)
				cycles = append(cycles, comp)
			}
		}
	}

	for _, v := range sortedKeys(nodes) {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
