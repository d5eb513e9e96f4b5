package registry

import (
	"context"
	"sync"

	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/typeid"
)

// BindingSink receives the concrete-class declarations of one module. It
// must apply all of them or, on error, none.
type BindingSink interface {
	BindAll(ctx context.Context, decls []concrete.Declaration) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithContracts replaces the default role contract table.
func WithContracts(t *role.Table) Option { return func(r *Registry) { r.contracts = t } }

// WithBindingSink sets where concrete declarations are forwarded.
func WithBindingSink(s BindingSink) Option { return func(r *Registry) { r.bindings = s } }

// Registry is the adapter role registry. It is safe for concurrent use.
type Registry struct {
	loader    module.Loader
	catalog   *typeid.Catalog
	contracts *role.Table
	bindings  BindingSink

	mu      sync.RWMutex
	entries map[key][]*Definition
	order   []key

	refsMu sync.Mutex
	refs   []module.Reference
	refSet map[string]struct{}

	scans sync.Map // module name -> *scanEntry
}

// New creates a registry that loads modules with loader and resolves type
// names through catalog.
func New(loader module.Loader, catalog *typeid.Catalog, opts ...Option) *Registry {
	if catalog == nil {
		catalog = typeid.NewCatalog()
	}
	r := &Registry{
		loader:    loader,
		catalog:   catalog,
		contracts: role.DefaultTable(),
		entries:   make(map[key][]*Definition),
		refSet:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the type catalog used to resolve names.
func (r *Registry) Catalog() *typeid.Catalog { return r.catalog }

// Insert appends def to the entry for its (role, adaptee). Earlier
// definitions keep precedence.
func (r *Registry) Insert(def *Definition) {
	if def == nil {
		return
	}
	k := key{role: def.Role, adaptee: def.Adaptee}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[k]; !exists {
		r.order = append(r.order, k)
	}
	r.entries[k] = append(r.entries[k], def)
}

// Lookup returns the first definition inserted for the exact (role, adaptee)
// pair. No subtype or wildcard matching is performed.
func (r *Registry) Lookup(rl role.Role, adaptee typeid.ID) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := r.entries[key{role: rl, adaptee: adaptee}]
	if len(defs) == 0 {
		return nil, false
	}
	return defs[0], true
}

// LookupAll returns every definition for the pair in insertion order.
func (r *Registry) LookupAll(rl role.Role, adaptee typeid.ID) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Definition(nil), r.entries[key{role: rl, adaptee: adaptee}]...)
}

// Remove drops all definitions for the pair and returns how many were
// dropped. Scanned modules stay scanned.
func (r *Registry) Remove(rl role.Role, adaptee typeid.ID) int {
	k := key{role: rl, adaptee: adaptee}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries[k])
	if n == 0 {
		return 0
	}
	delete(r.entries, k)
	for i, ok := range r.order {
		if ok == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return n
}

// Definitions returns a snapshot of all definitions, grouped by key in the
// order keys first appeared.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Definition
	for _, k := range r.order {
		out = append(out, r.entries[k]...)
	}
	return out
}

// Len returns the number of definitions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, defs := range r.entries {
		n += len(defs)
	}
	return n
}

// AddReference records an explicit module reference without loading it. It
// reports false when a reference with the same name is already known.
func (r *Registry) AddReference(ref module.Reference) bool {
	if ref.IsZero() {
		return false
	}
	r.refsMu.Lock()
	defer r.refsMu.Unlock()
	if _, exists := r.refSet[ref.Name()]; exists {
		return false
	}
	r.refSet[ref.Name()] = struct{}{}
	r.refs = append(r.refs, ref)
	return true
}

// References returns every explicit reference in declaration order.
func (r *Registry) References() []module.Reference {
	r.refsMu.Lock()
	defer r.refsMu.Unlock()
	return append([]module.Reference(nil), r.refs...)
}

// PendingReferences returns the explicit references not yet scanned, in
// declaration order.
func (r *Registry) PendingReferences() []module.Reference {
	var pending []module.Reference
	for _, ref := range r.References() {
		if r.Status(ref.Name()) == NotScanned {
			pending = append(pending, ref)
		}
	}
	return pending
}
