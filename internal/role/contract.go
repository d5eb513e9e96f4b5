package role

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/vk/rolebinder/internal/typeid"
)

// Contract describes what an adapter type bound to a role must provide.
type Contract struct {
	// Interface, if set, must be implemented by the adapter type (or its pointer).
	Interface reflect.Type
	// AssignableToAdaptee requires the adapter to stand in for the adaptee
	// type itself, as null-object substitutes do.
	AssignableToAdaptee bool
	Doc                 string
}

// Table maps roles to contracts. Roles without a contract accept any adapter.
type Table struct {
	mu        sync.RWMutex
	contracts map[Role]Contract
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{contracts: make(map[Role]Contract)}
}

// DefaultTable returns a table holding the contracts of the built-in roles.
func DefaultTable() *Table {
	t := NewTable()
	t.contracts[ActivationProvider] = Contract{
		Interface: reflect.TypeFor[Activator](),
		Doc:       "creates instances of the adaptee type",
	}
	t.contracts[StreamingSource] = Contract{
		Interface: reflect.TypeFor[Source](),
		Doc:       "streams a value of the adaptee type to a writer",
	}
	t.contracts[NullSubstitute] = Contract{
		AssignableToAdaptee: true,
		Doc:                 "inert stand-in for the adaptee type",
	}
	return t
}

// Define registers the contract for r. Redefining a role is an error.
func (t *Table) Define(r Role, c Contract) error {
	if _, err := Parse(string(r)); err != nil {
		return err
	}
	if c.Interface != nil && c.Interface.Kind() != reflect.Interface {
		return fmt.Errorf("role %q: contract must be an interface type, got %s", r, c.Interface)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.contracts[r]; exists {
		return fmt.Errorf("role %q already has a contract", r)
	}
	t.contracts[r] = c
	return nil
}

// Contract returns the contract for r.
func (t *Table) Contract(r Role) (Contract, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contracts[r]
	return c, ok
}

// Check verifies that adapter satisfies the contract of r for adaptee. A nil
// adaptee type skips the assignability check since the adaptee may not be a
// compiled type known to this process.
func (t *Table) Check(r Role, adapter, adaptee reflect.Type) error {
	c, ok := t.Contract(r)
	if !ok {
		return nil
	}
	if c.Interface != nil && !typeid.Satisfies(adapter, c.Interface) {
		return fmt.Errorf("adapter %s does not implement %s required by role %q", adapter, c.Interface, r)
	}
	if c.AssignableToAdaptee && adaptee != nil && !typeid.Satisfies(adapter, adaptee) {
		return fmt.Errorf("adapter %s cannot substitute for %s as required by role %q", adapter, adaptee, r)
	}
	return nil
}

// Roles returns the roles with a defined contract, sorted.
func (t *Table) Roles() []Role {
	t.mu.RLock()
	roles := make([]Role, 0, len(t.contracts))
	for r := range t.contracts {
		roles = append(roles, r)
	}
	t.mu.RUnlock()
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
