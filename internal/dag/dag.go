// Package dag provides a small generic directed-acyclic-graph used as the
// bookkeeping structure underneath the composition graph: packages and
// instances are vertices, "this instance's argument is bound to that
// instance's export" is an edge.
//
// Adapted from ocm.software/open-component-model's bindings/go/dag package,
// itself adapted from kro (https://github.com/kro-run/kro) under Apache 2.0.
package dag

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrSelfReference = fmt.Errorf("self-references are not allowed")
	ErrAlreadyExists = fmt.Errorf("vertex already exists in the graph")
)

// Vertex is a node in the graph, carrying arbitrary attributes and a set of
// outgoing edges (also carrying attributes).
type Vertex[T cmp.Ordered] struct {
	ID         T
	Attributes map[string]any
	Edges      map[T]map[string]any
}

// Graph is a directed acyclic graph over an ordered key type T.
//
// Unlike the teacher's bindings/go/dag, this package is not concurrency-safe
// (plain maps, not sync.Map): spec.md §5 requires composition graph
// operations to be strictly sequential, so the concurrency-safety the
// teacher needs (its DAG is shared across parallel descriptor discovery)
// would be dead weight here.
type Graph[T cmp.Ordered] struct {
	vertices  map[T]*Vertex[T]
	outDegree map[T]int
	inDegree  map[T]int
}

// New creates an empty graph.
func New[T cmp.Ordered]() *Graph[T] {
	return &Graph[T]{
		vertices:  make(map[T]*Vertex[T]),
		outDegree: make(map[T]int),
		inDegree:  make(map[T]int),
	}
}

// AddVertex registers a new vertex. Returns ErrAlreadyExists if id is taken.
func (g *Graph[T]) AddVertex(id T, attrs map[string]any) error {
	if _, exists := g.vertices[id]; exists {
		return fmt.Errorf("node %v already exists: %w", id, ErrAlreadyExists)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	g.vertices[id] = &Vertex[T]{
		ID:         id,
		Attributes: attrs,
		Edges:      make(map[T]map[string]any),
	}
	g.outDegree[id] = 0
	g.inDegree[id] = 0
	return nil
}

// CycleError reports the cycle that AddEdge refused to create.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("the current graph would create a cycle: %s", strings.Join(e.Cycle, " -> "))
}

// AddEdge adds a directed edge from one vertex to another, refusing to
// create a self-reference or a cycle.
func (g *Graph[T]) AddEdge(from, to T, attrs map[string]any) error {
	fromNode, ok := g.vertices[from]
	if !ok {
		return fmt.Errorf("node %v does not exist", from)
	}
	if _, ok := g.vertices[to]; !ok {
		return fmt.Errorf("node %v does not exist", to)
	}
	if from == to {
		return ErrSelfReference
	}

	_, existed := fromNode.Edges[to]
	if !existed {
		fromNode.Edges[to] = make(map[string]any)
		g.outDegree[from]++
		g.inDegree[to]++

		if hasCycle, cycle := g.HasCycle(); hasCycle {
			delete(fromNode.Edges, to)
			g.outDegree[from]--
			g.inDegree[to]--
			return fmt.Errorf("adding an edge from %v to %v would create a cycle: %w", from, to, &CycleError{Cycle: cycle})
		}
	}

	for k, v := range attrs {
		fromNode.Edges[to][k] = v
	}
	return nil
}

// GetVertex returns the vertex for id, if present.
func (g *Graph[T]) GetVertex(id T) (*Vertex[T], bool) {
	v, ok := g.vertices[id]
	return v, ok
}

// Vertices returns all vertex IDs in deterministic (sorted) order.
func (g *Graph[T]) Vertices() []T {
	ids := make([]T, 0, len(g.vertices))
	for id := range g.vertices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasCycle reports whether the graph currently contains a cycle, and if so
// returns the path of vertices forming it (closed: first == last).
func (g *Graph[T]) HasCycle() (bool, []string) {
	visited := make(map[T]bool)
	recStack := make(map[T]bool)
	var path []string

	var dfs func(T) bool
	dfs = func(node T) bool {
		visited[node] = true
		recStack[node] = true
		path = append(path, fmt.Sprintf("%v", node))

		vertex := g.vertices[node]
		neighbors := make([]T, 0, len(vertex.Edges))
		for n := range vertex.Edges {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)

		for _, n := range neighbors {
			if !visited[n] {
				if dfs(n) {
					return true
				}
			} else if recStack[n] {
				path = append(path, fmt.Sprintf("%v", n))
				return true
			}
		}

		recStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	for _, node := range g.Vertices() {
		if !visited[node] {
			path = nil
			if dfs(node) {
				start := 0
				for i, v := range path[:len(path)-1] {
					if v == path[len(path)-1] {
						start = i
						break
					}
				}
				return true, path[start:]
			}
		}
	}
	return false, nil
}

// TopologicalSort returns a deterministic topological order of all vertices.
func (g *Graph[T]) TopologicalSort() ([]T, error) {
	if cyclic, cycle := g.HasCycle(); cyclic {
		return nil, &CycleError{Cycle: cycle}
	}

	visited := make(map[T]bool)
	var order []T

	var dfs func(T)
	dfs = func(node T) {
		visited[node] = true
		vertex := g.vertices[node]
		neighbors := make([]T, 0, len(vertex.Edges))
		for n := range vertex.Edges {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)
		for _, n := range neighbors {
			if !visited[n] {
				dfs(n)
			}
		}
		order = append(order, node)
	}

	for _, node := range g.Vertices() {
		if !visited[node] {
			dfs(node)
		}
	}
	return order, nil
}

// Edges returns all edges in deterministic order, as (from, to) pairs.
func (g *Graph[T]) Edges() [][2]T {
	var edges [][2]T
	for from, vertex := range g.vertices {
		for to := range vertex.Edges {
			edges = append(edges, [2]T{from, to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] == edges[j][0] {
			return edges[i][1] < edges[j][1]
		}
		return edges[i][0] < edges[j][0]
	})
	return edges
}
