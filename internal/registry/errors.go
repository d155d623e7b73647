package registry

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateResource    = errors.New("duplicate resource")
	ErrForwardReference     = errors.New("forward reference")
	ErrUnknownReference     = errors.New("unknown reference")
	ErrUndeclaredDependency = errors.New("reference not declared in dependsOn")
	ErrInvalidResource      = errors.New("invalid resource")
)

// ValidationError reports a plan that cannot be orchestrated in a single pass.
type ValidationError struct {
	Resource string
	Kind     error
	Msg      string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("resource %q: %s", e.Resource, e.Kind)
	}
	return fmt.Sprintf("resource %q: %s: %s", e.Resource, e.Kind, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalidf(resource string, kind error, format string, args ...any) error {
	return &ValidationError{Resource: resource, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
