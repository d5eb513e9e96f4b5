package registry

import (
	"fmt"
	"reflect"

	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/typeid"
)

// Definition declares that Adapter implements Role for Adaptee. Definitions
// are created by scanning and must not be modified afterwards.
type Definition struct {
	Role    role.Role
	Adaptee typeid.ID
	Adapter typeid.ID
	// AdapterType is the compiled type behind Adapter, or nil when the name
	// is not known to the catalog.
	AdapterType reflect.Type
	Module      module.Reference
	Options     map[string]string
	Origin      string
}

// Option returns the named adapter option.
func (d *Definition) Option(name string) (string, bool) {
	v, ok := d.Options[name]
	return v, ok
}

// Resolved reports whether the adapter name maps to a compiled type.
func (d *Definition) Resolved() bool { return d.AdapterType != nil }

func (d *Definition) String() string {
	return fmt.Sprintf("%s(%s) -> %s from %s", d.Role, d.Adaptee, d.Adapter, d.Module.Name())
}

// key identifies a registry entry.
type key struct {
	role    role.Role
	adaptee typeid.ID
}
