package engine

import (
	"fmt"
	"io"

	"github.com/picklr-io/deployr/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes map[string]*dagNode
	decl  []string // declaration order, used to break ties deterministically
	order []string // topological order (creation order)
}

type dagNode struct {
	name     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources.
// It resolves both explicit DependsOn and implicit ptr:// references.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode)}

	for _, res := range resources {
		if _, dup := dag.nodes[res.Name]; dup {
			return nil, fmt.Errorf("duplicate resource %q in graph", res.Name)
		}
		dag.nodes[res.Name] = &dagNode{name: res.Name}
		dag.decl = append(dag.decl, res.Name)
	}

	for _, res := range resources {
		node := dag.nodes[res.Name]
		seen := make(map[string]bool)
		add := func(dep string) {
			if _, ok := dag.nodes[dep]; ok && !seen[dep] {
				seen[dep] = true
				node.edges = append(node.edges, dep)
			}
		}

		for _, dep := range res.DependsOn {
			add(dep)
		}
		for _, arg := range res.Args {
			for _, ref := range ir.ExtractRefs(arg, ir.RefResource) {
				add(ref)
			}
		}
	}

	for _, name := range dag.decl {
		for _, dep := range dag.nodes[name].edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, name)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order
	return dag, nil
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// Dependencies returns the direct dependencies of name.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every resource reachable from name through dependency edges,
// in creation order, not including name itself.
func (d *DAG) TransitiveDeps(name string) []string {
	reached := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, dep := range d.Dependencies(n) {
			if !reached[dep] {
				reached[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)

	var out []string
	for _, n := range d.order {
		if reached[n] {
			out = append(out, n)
		}
	}
	return out
}

// Expand returns names plus all of their transitive dependencies, in creation order.
func (d *DAG) Expand(names []string) []string {
	want := make(map[string]bool)
	for _, n := range names {
		want[n] = true
		for _, dep := range d.TransitiveDeps(n) {
			want[dep] = true
		}
	}

	var out []string
	for _, n := range d.order {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

// WriteDOT renders the graph in Graphviz format. Edges point from a resource to
// the resources that depend on it.
func (d *DAG) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph deployr {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	for _, name := range d.order {
		fmt.Fprintf(w, "  %q;\n", name)
	}
	for _, name := range d.order {
		for _, dep := range d.nodes[name].edges {
			fmt.Fprintf(w, "  %q -> %q;\n", dep, name)
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// topoSort performs Kahn's algorithm, taking ready nodes in declaration order.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = len(node.edges)
	}

	var queue []string
	for _, name := range d.decl {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range d.nodes[node].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("dependency cycle detected in resource graph")
	}
	return sorted, nil
}
