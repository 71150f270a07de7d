package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txgraph/internal/ir"
)

// CycleWarning reports classes whose mandatory relations form a cycle.
//
// Cycles are warnings, not errors: the records of a cycle can still be
// created, but only together in one transaction, and none of them can be
// deleted on its own without breaking a mandatory relation of another.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["Order", "Invoice", "Order"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles builds the class graph of mandatory relations and reports
// each strongly connected component (size > 1, or a self-loop) as a warning.
// Warnings are ordered by their first class name.
func AnalyzeCycles(m *ir.SchemaModel) []CycleWarning {
	graph := buildMandatoryGraph(m)
	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

type classGraph map[string][]string

// buildMandatoryGraph adds an edge class -> target for every mandatory
// relation end-point. Nodes and edges follow declaration order.
func buildMandatoryGraph(m *ir.SchemaModel) classGraph {
	graph := make(classGraph, len(m.Classes))
	for _, c := range m.Classes {
		if graph[c.Name] == nil {
			graph[c.Name] = []string{}
		}
		for _, r := range c.Relations {
			if r.Mandatory && !slices.Contains(graph[c.Name], r.Class) {
				graph[c.Name] = append(graph[c.Name], r.Class)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph classGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph classGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph classGraph) CycleWarning {
	slices.Sort(scc)
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("class %s has a mandatory relation to itself", scc[0]),
			Level:   "warning",
		}
	}
	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("mandatory relation cycle: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside the SCC from its first member back to itself.
func cyclePath(scc []string, graph classGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
