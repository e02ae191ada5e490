// Package dag orders plan steps by their data dependencies.
package dag

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Graph is a directed graph where an edge runs from a dependency to its
// dependent.
type Graph[K cmp.Ordered] struct {
	children map[K][]K
	parents  map[K][]K
}

// NewGraph creates an empty graph.
func NewGraph[K cmp.Ordered]() *Graph[K] {
	return &Graph[K]{
		children: make(map[K][]K),
		parents:  make(map[K][]K),
	}
}

// AddNode adds id. Adding an existing node is a no-op.
func (g *Graph[K]) AddNode(id K) {
	if _, ok := g.children[id]; ok {
		return
	}
	g.children[id] = nil
	g.parents[id] = nil
}

// AddEdge records that child depends on parent. Both must exist.
func (g *Graph[K]) AddEdge(parent, child K) error {
	if _, ok := g.children[parent]; !ok {
		return fmt.Errorf("unknown node %v", parent)
	}
	if _, ok := g.children[child]; !ok {
		return fmt.Errorf("unknown node %v", child)
	}
	if parent == child {
		return fmt.Errorf("node %v depends on itself", parent)
	}
	if slices.Contains(g.children[parent], child) {
		return nil
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	return nil
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int { return len(g.children) }

// Edges returns the number of edges.
func (g *Graph[K]) Edges() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

// Parents returns the nodes id depends on, in insertion order.
func (g *Graph[K]) Parents(id K) []K { return g.parents[id] }

// Children returns the nodes depending on id, in insertion order.
func (g *Graph[K]) Children(id K) []K { return g.children[id] }

// Levels groups nodes by dependency depth: level 0 holds the nodes without
// parents and every other node sits one level below its deepest parent.
// Nodes within a level are sorted. A cycle is an error naming the nodes on
// it; nodes that only depend on a cycle are left out.
func (g *Graph[K]) Levels() ([][]K, error) {
	pending := make(map[K]int, len(g.parents))
	var level []K
	for id, ps := range g.parents {
		pending[id] = len(ps)
		if len(ps) == 0 {
			level = append(level, id)
		}
	}

	var levels [][]K
	placed := 0
	for len(level) > 0 {
		slices.Sort(level)
		levels = append(levels, level)
		placed += len(level)

		var next []K
		for _, id := range level {
			for _, c := range g.children[id] {
				pending[c]--
				if pending[c] == 0 {
					next = append(next, c)
				}
			}
		}
		level = next
	}

	if placed != len(g.children) {
		stuck := make(map[K]bool)
		for id, n := range pending {
			if n > 0 {
				stuck[id] = true
			}
		}
		var members []K
		for id := range stuck {
			if g.reaches(id, id, stuck) {
				members = append(members, id)
			}
		}
		slices.Sort(members)
		return nil, fmt.Errorf("cycle detected among %v", members)
	}
	return levels, nil
}

// reaches reports whether to is reachable from a child of from, walking only
// nodes in within.
func (g *Graph[K]) reaches(from, to K, within map[K]bool) bool {
	seen := make(map[K]bool)
	stack := slices.Clone(g.children[from])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] || !within[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.children[n]...)
	}
	return false
}

// TopologicalSort returns every node after all of its parents, level by level.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	return slices.Concat(levels...), nil
}

// Upstream returns every node id transitively depends on, sorted.
func (g *Graph[K]) Upstream(id K) []K {
	seen := make(map[K]bool)
	stack := slices.Clone(g.parents[id])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.parents[n]...)
	}
	return slices.Sorted(maps.Keys(seen))
}
