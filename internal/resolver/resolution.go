package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/typeid"
)

// ErrNotResolved is returned when using a resolution that found nothing.
var ErrNotResolved = errors.New("resolution has no adapter")

// State is the outcome of a resolution.
type State int

const (
	// StateUnresolved is the zero state: nothing was attempted.
	StateUnresolved State = iota
	StateProbing
	StateResolved
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateResolved:
		return "resolved"
	case StateNotFound:
		return "not_found"
	default:
		return "unresolved"
	}
}

// Resolution is the result of resolving one (role, adaptee) request.
type Resolution struct {
	Role    role.Role
	Adaptee typeid.ID
	State   State
	// Definition is set when State is StateResolved.
	Definition *registry.Definition
	// Via is set when the adapter was found for the concrete implementation
	// of an abstract adaptee.
	Via *concrete.Binding
	// Fallback marks a null substitute returned in place of a missing adapter.
	Fallback bool
	// Failures lists the module load failures met while probing.
	Failures []error

	catalog *typeid.Catalog
}

// Found reports whether an adapter was resolved.
func (r Resolution) Found() bool { return r.State == StateResolved && r.Definition != nil }

// Adapter returns the adapter type identity, or "" when nothing was found.
func (r Resolution) Adapter() typeid.ID {
	if !r.Found() {
		return ""
	}
	return r.Definition.Adapter
}

// Target is the type the adapter serves: the concrete type when the request
// went through concrete-class resolution, the adaptee otherwise.
func (r Resolution) Target() typeid.ID {
	if r.Via != nil {
		return r.Via.Concrete
	}
	return r.Adaptee
}

// New instantiates the adapter through the type catalog and applies its
// declared options when the adapter is role.Configurable.
func (r Resolution) New(ctx context.Context) (any, error) {
	if !r.Found() {
		return nil, fmt.Errorf("%w: %s for %s is %s", ErrNotResolved, r.Role, r.Adaptee, r.State)
	}
	if r.catalog == nil {
		return nil, fmt.Errorf("no type catalog to instantiate %s", r.Definition.Adapter)
	}
	v, err := r.catalog.New(r.Definition.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate adapter %s: %w", r.Definition.Adapter, err)
	}
	if c, ok := v.(role.Configurable); ok && len(r.Definition.Options) > 0 {
		if err := c.Configure(r.Definition.Options); err != nil {
			return nil, fmt.Errorf("failed to configure adapter %s: %w", r.Definition.Adapter, err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Adapter instantiated.", "role", r.Role, "adapter", r.Definition.Adapter)
	return v, nil
}

func (r Resolution) String() string {
	s := fmt.Sprintf("%s(%s): %s", r.Role, r.Adaptee, r.State)
	if r.Found() {
		s += fmt.Sprintf(" -> %s from %s", r.Definition.Adapter, r.Definition.Module.Name())
	}
	if r.Via != nil {
		s += fmt.Sprintf(" via %s (%s)", r.Via.Concrete, r.Via.Strategy)
	}
	if r.Fallback {
		s += " [fallback]"
	}
	return s
}
