// Package registry holds the ordered table of resources a deployment plan constructs.
//
// Declaration order is the construction order. The registry does not sort: a resource
// may only depend on resources declared before it, so one sequential pass always
// sees its dependencies confirmed first.
package registry

import (
	"github.com/picklr-io/deployr/internal/ir"
)

// Registry is an immutable, validated deployment plan.
type Registry struct {
	resources []*ir.Resource
	index     map[string]int
}

// New validates resources against the declaration-order rules and the constants table.
func New(resources []*ir.Resource, constants map[string]any) (*Registry, error) {
	r := &Registry{
		index: make(map[string]int, len(resources)),
	}

	for i, res := range resources {
		if res == nil || res.Name == "" {
			return nil, invalidf("", ErrInvalidResource, "resource #%d has no name", i)
		}
		if _, dup := r.index[res.Name]; dup {
			return nil, invalidf(res.Name, ErrDuplicateResource, "declared more than once")
		}

		declared := make(map[string]bool, len(res.DependsOn))
		for _, dep := range res.DependsOn {
			if err := r.checkDefinedBefore(res.Name, dep, resources[i+1:]); err != nil {
				return nil, err
			}
			declared[dep] = true
		}

		for _, ref := range ir.ExtractRefs(res.Args, ir.RefResource) {
			if err := r.checkDefinedBefore(res.Name, ref, resources[i+1:]); err != nil {
				return nil, err
			}
			if !declared[ref] {
				return nil, invalidf(res.Name, ErrUndeclaredDependency, "argument references %q", ref)
			}
		}

		for _, key := range ir.ExtractRefs(res.Args, ir.RefConst) {
			if _, ok := constants[key]; !ok {
				return nil, invalidf(res.Name, ErrUnknownReference, "constant %q is not configured", key)
			}
		}

		if res.Value != "" {
			if _, err := ParseValue(res.Value); err != nil {
				return nil, invalidf(res.Name, ErrInvalidResource, "%v", err)
			}
		}

		r.index[res.Name] = i
		r.resources = append(r.resources, res)
	}

	return r, nil
}

func (r *Registry) checkDefinedBefore(name, dep string, later []*ir.Resource) error {
	if dep == name {
		return invalidf(name, ErrForwardReference, "depends on itself")
	}
	if _, ok := r.index[dep]; ok {
		return nil
	}
	for _, l := range later {
		if l != nil && l.Name == dep {
			return invalidf(name, ErrForwardReference, "%q is declared later in the plan", dep)
		}
	}
	return invalidf(name, ErrUnknownReference, "%q is not declared", dep)
}

// ListResources returns the resources in declaration order.
func (r *Registry) ListResources() []*ir.Resource {
	out := make([]*ir.Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// Get returns a resource by name.
func (r *Registry) Get(name string) (*ir.Resource, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.resources[i], true
}

// Len returns the number of resources.
func (r *Registry) Len() int {
	return len(r.resources)
}

// Select returns, in declaration order, the resources carrying any of tags.
// No tags selects everything.
func (r *Registry) Select(tags []string) []*ir.Resource {
	if len(tags) == 0 {
		return r.ListResources()
	}
	var out []*ir.Resource
	for _, res := range r.resources {
		for _, t := range tags {
			if res.HasTag(t) {
				out = append(out, res)
				break
			}
		}
	}
	return out
}
