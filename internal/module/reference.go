package module

import (
	"errors"
	"fmt"
)

// Reference names a module known to exist. The zero value is not valid; use
// NewReference.
type Reference struct {
	name     string
	location string
	deferred bool
}

// NewReference creates a reference. location may be empty for in-process
// modules. A deferred reference is recorded without being loaded.
func NewReference(name, location string, deferred bool) (Reference, error) {
	if name == "" {
		return Reference{}, errors.New("module reference name cannot be empty")
	}
	return Reference{name: name, location: location, deferred: deferred}, nil
}

// MustReference is like NewReference but panics on error.
func MustReference(name, location string, deferred bool) Reference {
	ref, err := NewReference(name, location, deferred)
	if err != nil {
		panic(err)
	}
	return ref
}

// Name is the module identity. It is unique within a session.
func (r Reference) Name() string { return r.name }

// Location is the locator the loader uses, e.g. a manifest path.
func (r Reference) Location() string { return r.location }

// Deferred reports whether the module is loaded only on first need.
func (r Reference) Deferred() bool { return r.deferred }

// IsZero reports whether r is the zero Reference.
func (r Reference) IsZero() bool { return r.name == "" }

// AsDeferred returns a copy of r with the deferred flag set.
func (r Reference) AsDeferred() Reference {
	r.deferred = true
	return r
}

func (r Reference) String() string {
	s := r.name
	if r.location != "" {
		s = fmt.Sprintf("%s (%s)", s, r.location)
	}
	if r.deferred {
		s += " [deferred]"
	}
	return s
}
