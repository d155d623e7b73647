package ir

import (
	"strings"
)

const (
	// PtrScheme prefixes an argument that resolves to another resource's address.
	PtrScheme = "ptr://"
	// ConstScheme prefixes an argument that resolves to a configuration constant.
	ConstScheme = "const://"

	// TagAll is carried implicitly by every resource.
	TagAll = "all"
)

// Resource represents a single contract declared in a deployment plan.
type Resource struct {
	Name      string   `pkl:"name" yaml:"name" json:"name"`
	Contract  string   `pkl:"contract" yaml:"contract,omitempty" json:"contract,omitempty"` // artifact name, defaults to Name
	Args      []any    `pkl:"args" yaml:"args,omitempty" json:"args,omitempty"`
	DependsOn []string `pkl:"dependsOn" yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Value     string   `pkl:"value" yaml:"value,omitempty" json:"value,omitempty"` // e.g. "1ether"
	Tags      []string `pkl:"tags" yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ContractName returns the artifact name used to construct the resource.
func (r *Resource) ContractName() string {
	if r.Contract != "" {
		return r.Contract
	}
	return r.Name
}

// HasTag reports whether the resource is selected by tag.
func (r *Resource) HasTag(tag string) bool {
	if tag == TagAll {
		return true
	}
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RefKind distinguishes the two kinds of argument placeholders.
type RefKind int

const (
	RefNone RefKind = iota
	RefResource
	RefConst
)

// ParseRef classifies a constructor argument. Non-string values are literals.
func ParseRef(v any) (RefKind, string) {
	s, ok := v.(string)
	if !ok {
		return RefNone, ""
	}
	switch {
	case strings.HasPrefix(s, PtrScheme):
		return RefResource, strings.TrimSuffix(strings.TrimPrefix(s, PtrScheme), "/address")
	case strings.HasPrefix(s, ConstScheme):
		return RefConst, strings.TrimPrefix(s, ConstScheme)
	}
	return RefNone, ""
}

// Ptr builds a resource address reference.
func Ptr(name string) string {
	return PtrScheme + name
}

// Const builds a configuration constant reference.
func Const(key string) string {
	return ConstScheme + key
}

// ExtractRefs returns every reference of the given kind found in v,
// descending into slices and maps.
func ExtractRefs(v any, kind RefKind) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if k, name := ParseRef(val); k == kind && name != "" {
			refs = append(refs, name)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, ExtractRefs(item, kind)...)
		}
	case map[string]any:
		for _, item := range val {
			refs = append(refs, ExtractRefs(item, kind)...)
		}
	}
	return refs
}
