package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shaiso/sasflow/internal/domain"
)

// Node is a flow in the graph.
type Node struct {
	// Name is the flow name (key in FlowSpec.Flows).
	Name string

	// Def is the flow definition from the document.
	Def *domain.FlowDef

	// DependsOn are resolved predecessor nodes (missing and self references are dropped).
	DependsOn []*Node

	// Dependents are flows that list this flow as a predecessor.
	Dependents []*Node

	// InDegree is the number of resolved predecessors.
	InDegree int

	// Issues are the validation problems found for this flow.
	Issues []*ValidationError
}

// Valid reports whether the flow passed validation and may execute.
func (n *Node) Valid() bool {
	return len(n.Issues) == 0
}

// Graph is the flow dependency graph of one FlowSpec.
type Graph struct {
	// Nodes maps flow name to node.
	Nodes map[string]*Node

	// RootNodes are valid flows with no predecessors, sorted by name.
	RootNodes []*Node

	// Order is a topological order of the flows outside of any cycle.
	Order []*Node

	// Issues lists every validation error in discovery order.
	Issues []*ValidationError
}

// BuildGraph builds the flow graph and validates it.
//
// Validation never aborts the build: every problem is attached to the
// offending flow so unrelated flows can still run. Checks:
//   - the flow has at least one job, each with a location
//   - every predecessor exists in the document
//   - no flow lists itself as a predecessor
//   - no flow sits on or behind a predecessor cycle
func BuildGraph(spec *domain.FlowSpec) *Graph {
	g := &Graph{
		Nodes:     make(map[string]*Node),
		RootNodes: make([]*Node, 0),
	}
	if spec == nil {
		return g
	}

	// First pass: create all nodes
	for _, name := range sortedNames(spec.Flows) {
		def := spec.Flows[name]
		if def == nil {
			def = &domain.FlowDef{}
		}
		g.Nodes[name] = &Node{
			Name:       name,
			Def:        def,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
	}

	// Second pass: check jobs and link predecessors
	for _, name := range g.names() {
		node := g.Nodes[name]
		g.checkJobs(node)
		g.linkPredecessors(node)
	}

	// Flows that cannot be ordered are on or behind a cycle
	g.Order = g.topologicalSort()
	ordered := make(map[string]bool, len(g.Order))
	for _, node := range g.Order {
		ordered[node.Name] = true
	}
	for _, name := range g.names() {
		if !ordered[name] {
			g.addIssue(g.Nodes[name], NewValidationError(name, "",
				fmt.Sprintf("'%s' flow is part of or depends on a predecessor cycle.", name), ErrCyclicDependency))
		}
	}

	for _, name := range g.names() {
		node := g.Nodes[name]
		if node.Valid() && node.Def.IsRoot() {
			g.RootNodes = append(g.RootNodes, node)
		}
	}

	return g
}

// checkJobs validates the job list of a flow.
func (g *Graph) checkJobs(node *Node) {
	if len(node.Def.Jobs) == 0 {
		g.addIssue(node, NewValidationError(node.Name, "",
			fmt.Sprintf("'%s' flow has no jobs.", node.Name), ErrNoJobs))
		return
	}

	for i, job := range node.Def.Jobs {
		if job.Location == "" {
			g.addIssue(node, NewValidationError(node.Name, "",
				fmt.Sprintf("Job %d in '%s' flow has no location.", i+1, node.Name), ErrEmptyJobLocation))
		}
	}
}

// linkPredecessors resolves the predecessor names of a flow into edges.
func (g *Graph) linkPredecessors(node *Node) {
	for _, pred := range node.Def.Predecessors {
		if pred == node.Name {
			g.addIssue(node, NewValidationError(node.Name, pred,
				fmt.Sprintf("Predecessor '%s' mentioned in '%s' cannot point to itself.", pred, node.Name), ErrSelfPredecessor))
			continue
		}

		predNode, exists := g.Nodes[pred]
		if !exists {
			g.addIssue(node, NewValidationError(node.Name, pred,
				fmt.Sprintf("Predecessor '%s' mentioned in '%s' flow does not exist.", pred, node.Name), ErrMissingPredecessor))
			continue
		}

		g.addEdge(predNode, node)
	}
}

// addEdge adds an edge, ignoring duplicates so InDegree is counted once.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.Name == from.Name {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

func (g *Graph) addIssue(node *Node, issue *ValidationError) {
	node.Issues = append(node.Issues, issue)
	g.Issues = append(g.Issues, issue)
}

// topologicalSort runs Kahn's algorithm over the resolved edges.
// Flows on or behind a cycle are left out of the result.
func (g *Graph) topologicalSort() []*Node {
	inDegree := make(map[string]int, len(g.Nodes))
	queue := make([]*Node, 0)

	for _, name := range g.names() {
		node := g.Nodes[name]
		inDegree[name] = node.InDegree
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return order
}

// GetNode returns the node for a flow name, or nil.
func (g *Graph) GetNode(name string) *Node {
	return g.Nodes[name]
}

// Successors returns the flows that list name as a predecessor, sorted by name.
// The flow itself is never included.
func (g *Graph) Successors(name string) []*Node {
	node, ok := g.Nodes[name]
	if !ok {
		return nil
	}

	successors := make([]*Node, 0, len(node.Dependents))
	for _, dep := range node.Dependents {
		if dep.Name != name {
			successors = append(successors, dep)
		}
	}
	sort.Slice(successors, func(i, j int) bool { return successors[i].Name < successors[j].Name })
	return successors
}

// Size returns the number of flows.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// JobCount returns the number of jobs across all flows.
func (g *Graph) JobCount() int {
	total := 0
	for _, node := range g.Nodes {
		total += len(node.Def.Jobs)
	}
	return total
}

// Err returns all validation issues joined, or nil when the graph is clean.
func (g *Graph) Err() error {
	if len(g.Issues) == 0 {
		return nil
	}
	errs := make([]error, len(g.Issues))
	for i, issue := range g.Issues {
		errs[i] = issue
	}
	return errors.Join(errs...)
}

// names returns the flow names sorted, giving deterministic iteration.
func (g *Graph) names() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedNames(flows map[string]*domain.FlowDef) []string {
	names := make([]string, 0, len(flows))
	for name := range flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
