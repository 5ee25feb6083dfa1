package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph represents the foreign key dependencies between models.
// Self references are not edges: a self-referential model can always be created.
type RelationshipGraph struct {
	nodes map[string]*Model
	edges map[string][]string // model -> dependencies
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(models map[string]*Model) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: models,
		edges: make(map[string][]string),
	}

	for name, m := range models {
		seen := make(map[string]bool)
		add := func(target string) {
			if target == name || seen[target] {
				return
			}
			seen[target] = true
			graph.edges[name] = append(graph.edges[name], target)
		}
		for _, rel := range m.Relationships {
			if rel.Type == RelationshipBelongsTo {
				add(rel.Target)
			}
		}
		for _, f := range m.Fields {
			if f.References != nil {
				add(f.References.Model)
			}
		}
		sort.Strings(graph.edges[name])
	}

	return graph
}

// DetectCycles detects circular dependencies in the relationship graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns models in dependency order (dependencies first).
// Edges to unknown models are ignored.
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	reverseEdges := make(map[string][]string)
	for node := range g.nodes {
		for _, target := range g.edges[node] {
			if _, known := g.nodes[target]; !known {
				continue
			}
			outDegree[node]++
			reverseEdges[target] = append(reverseEdges[target], node)
		}
	}

	queue := []string{}
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := []string{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		dependents := reverseEdges[node]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected:\n%s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// GetDependencies returns all direct dependencies of a model
func (g *RelationshipGraph) GetDependencies(model string) []string {
	deps, exists := g.edges[model]
	if !exists {
		return []string{}
	}
	return deps
}

// ValidateGraph checks that relationships and references point at known models
func (g *RelationshipGraph) ValidateGraph() error {
	for _, name := range g.sortedNodes() {
		m := g.nodes[name]
		for relName, rel := range m.Relationships {
			if _, exists := g.nodes[rel.Target]; !exists {
				return fmt.Errorf("model %s references unknown model %s in relationship %s",
					name, rel.Target, relName)
			}
		}
		for fieldName, f := range m.Fields {
			if f.References == nil {
				continue
			}
			if _, exists := g.nodes[f.References.Model]; !exists {
				return fmt.Errorf("model %s references unknown model %s in field %s",
					name, f.References.Model, fieldName)
			}
		}
	}
	return nil
}

func (g *RelationshipGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
