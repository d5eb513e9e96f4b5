package config

import (
	"errors"
	"fmt"
)

// Manifest is the declarative metadata of a single module.
type Manifest struct {
	// Module is the declared module name. Optional; the reference name wins
	// when the two differ.
	Module      string
	Description string
	Adapters    []*AdapterDeclaration
	Concretes   []*ConcreteDeclaration
	References  []*ReferenceDeclaration
}

// AdapterDeclaration binds an adapter type to a (role, adaptee) pair.
type AdapterDeclaration struct {
	Role    string
	Adaptee string
	Adapter string
	Options map[string]string
	// Origin locates the declaration for diagnostics, e.g. "props.hcl:12".
	Origin string
}

// ConcreteDeclaration binds an abstract type to its concrete implementation.
type ConcreteDeclaration struct {
	Abstract string
	Concrete string
	Origin   string
}

// ReferenceDeclaration names another module, optionally deferred.
type ReferenceDeclaration struct {
	Name     string
	Location string
	Deferred bool
	Origin   string
}

// Validate checks the structural rules shared by every encoding: required
// fields are present. Type and role syntax is left to the registry.
func (m *Manifest) Validate() error {
	if m == nil {
		return nil
	}

	var errs []error
	for _, a := range m.Adapters {
		switch {
		case a.Role == "":
			errs = append(errs, fmt.Errorf("%s: adapter declaration is missing a role", a.origin()))
		case a.Adaptee == "":
			errs = append(errs, fmt.Errorf("%s: adapter declaration for role %q is missing an adaptee type", a.origin(), a.Role))
		case a.Adapter == "":
			errs = append(errs, fmt.Errorf("%s: adapter declaration for %s/%s is missing an adapter type", a.origin(), a.Role, a.Adaptee))
		}
	}
	for _, c := range m.Concretes {
		if c.Abstract == "" || c.Concrete == "" {
			errs = append(errs, fmt.Errorf("%s: concrete declaration needs both an abstract and a concrete type", originOr(c.Origin)))
		}
	}
	for _, r := range m.References {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s: module reference is missing a name", originOr(r.Origin)))
		}
	}
	return errors.Join(errs...)
}

func (a *AdapterDeclaration) origin() string { return originOr(a.Origin) }

func originOr(origin string) string {
	if origin == "" {
		return "<unknown>"
	}
	return origin
}
