// Package concrete maps abstract types to the concrete types that implement
// them, so that an adapter declared for an implementation can serve requests
// made for its interface.
package concrete

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/typeid"
)

var (
	// ErrNoConcreteType indicates that no strategy produced a valid binding.
	ErrNoConcreteType = errors.New("no concrete type")
	// ErrDuplicateBinding indicates a second explicit binding for one type.
	ErrDuplicateBinding = errors.New("duplicate concrete binding")
)

// Strategy names how a binding was found.
type Strategy string

const (
	StrategyDeclared   Strategy = "declared"
	StrategyConvention Strategy = "convention"
)

// Binding links an abstract type to its concrete implementation.
type Binding struct {
	Source   typeid.ID
	Concrete typeid.ID
	Strategy Strategy
	Origin   string
}

// ProviderFunc proposes candidate concrete types for an abstract type, best
// first. Candidates are checked against the catalog before use.
type ProviderFunc func(abstract typeid.ID) []typeid.ID

// NamingConvention proposes the name without a leading interface marker
// ("IBag" becomes "Bag"), then the name with an "Impl" suffix, for both the
// stripped and the original name. Candidates keep the package of abstract.
func NamingConvention(abstract typeid.ID) []typeid.ID {
	name := abstract.Name()
	var names []string
	if r := []rune(name); len(r) > 1 && r[0] == 'I' && unicode.IsUpper(r[1]) {
		stripped := string(r[1:])
		names = append(names, stripped, stripped+"Impl")
	}
	if !strings.HasSuffix(name, "Impl") {
		names = append(names, name+"Impl")
	}

	out := make([]typeid.ID, 0, len(names))
	for _, n := range names {
		out = append(out, abstract.WithName(n))
	}
	return out
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProviders replaces the fallback providers. Passing none disables
// convention-based resolution.
func WithProviders(providers ...ProviderFunc) Option {
	return func(r *Resolver) { r.providers = providers }
}

// Resolver resolves concrete types and caches the outcome. It is safe for
// concurrent use.
type Resolver struct {
	catalog   *typeid.Catalog
	providers []ProviderFunc

	mu       sync.Mutex
	declared map[typeid.ID]Binding
	positive map[typeid.ID]Binding
	negative map[typeid.ID]error
}

// NewResolver creates a resolver over catalog using NamingConvention unless
// other providers are given.
func NewResolver(catalog *typeid.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		providers: []ProviderFunc{NamingConvention},
		declared:  make(map[typeid.ID]Binding),
		positive:  make(map[typeid.ID]Binding),
		negative:  make(map[typeid.ID]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declaration is an explicit binding found in module metadata.
type Declaration struct {
	Abstract typeid.ID
	Concrete typeid.ID
	Origin   string
}

// Bind records one explicit binding. See BindAll.
func (r *Resolver) Bind(ctx context.Context, abstract, concrete typeid.ID, origin string) error {
	return r.BindAll(ctx, []Declaration{{Abstract: abstract, Concrete: concrete, Origin: origin}})
}

// BindAll records the explicit bindings of one module as a unit: either all
// of them are applied or, when any conflicts, none is. Repeating an identical
// binding is accepted; a different one is ErrDuplicateBinding, as is one that
// conflicts with a binding attached in the catalog or with another
// declaration of the same batch.
func (r *Resolver) BindAll(ctx context.Context, decls []Declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[typeid.ID]Declaration, len(decls))
	var errs []error
	for _, d := range decls {
		if err := r.conflict(d, batch); err != nil {
			errs = append(errs, err)
			continue
		}
		batch[d.Abstract] = d
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx)
	for _, d := range decls {
		if _, ok := r.declared[d.Abstract]; ok {
			continue
		}
		r.declared[d.Abstract] = Binding{Source: d.Abstract, Concrete: d.Concrete, Strategy: StrategyDeclared, Origin: d.Origin}
		delete(r.negative, d.Abstract)
		if b, ok := r.positive[d.Abstract]; ok && b.Strategy == StrategyConvention {
			delete(r.positive, d.Abstract)
		}
		logger.Debug("Concrete binding declared.", "abstract", d.Abstract, "concrete", d.Concrete, "origin", d.Origin)
	}
	return nil
}

// conflict reports whether d contradicts a recorded binding, the catalog or
// an earlier declaration of batch. The caller holds r.mu.
func (r *Resolver) conflict(d Declaration, batch map[typeid.ID]Declaration) error {
	if existing, ok := r.declared[d.Abstract]; ok && existing.Concrete != d.Concrete {
		return fmt.Errorf("%s: %w: %s is already bound to %s (%s), cannot bind %s", d.Origin, ErrDuplicateBinding, d.Abstract, existing.Concrete, existing.Origin, d.Concrete)
	}
	if other, ok := batch[d.Abstract]; ok && other.Concrete != d.Concrete {
		return fmt.Errorf("%s: %w: %s is bound to both %s (%s) and %s", d.Origin, ErrDuplicateBinding, d.Abstract, other.Concrete, other.Origin, d.Concrete)
	}
	if entry, ok := r.catalog.Lookup(d.Abstract); ok && !entry.Concrete.IsZero() && entry.Concrete != d.Concrete {
		return fmt.Errorf("%s: %w: %s is already bound to %s by its type registration, cannot bind %s", d.Origin, ErrDuplicateBinding, d.Abstract, entry.Concrete, d.Concrete)
	}
	return nil
}

// ResolveConcreteType returns the concrete implementation of abstract. An
// explicit binding always takes precedence over providers, and an invalid
// explicit binding is an error rather than a reason to guess.
func (r *Resolver) ResolveConcreteType(ctx context.Context, abstract typeid.ID) (Binding, error) {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.positive[abstract]; ok {
		return b, nil
	}
	if err, ok := r.negative[abstract]; ok {
		return Binding{}, err
	}

	b, err := r.resolve(abstract)
	if err != nil {
		r.negative[abstract] = err
		logger.Debug("No concrete type found.", "abstract", abstract, "error", err)
		return Binding{}, err
	}
	r.positive[abstract] = b
	logger.Debug("Concrete type resolved.", "abstract", abstract, "concrete", b.Concrete, "strategy", b.Strategy)
	return b, nil
}

func (r *Resolver) resolve(abstract typeid.ID) (Binding, error) {
	entry, ok := r.catalog.Lookup(abstract)
	if !ok {
		return Binding{}, fmt.Errorf("%w for %s: type is not registered", ErrNoConcreteType, abstract)
	}
	if !entry.Abstract {
		return Binding{}, fmt.Errorf("%w for %s: type is not abstract", ErrNoConcreteType, abstract)
	}

	declared, ok := r.declared[abstract]
	if !ok && !entry.Concrete.IsZero() {
		declared, ok = Binding{Source: abstract, Concrete: entry.Concrete, Strategy: StrategyDeclared, Origin: "catalog"}, true
	}
	if ok {
		if err := r.check(declared.Concrete, abstract); err != nil {
			return Binding{}, err
		}
		return declared, nil
	}

	for _, provider := range r.providers {
		for _, candidate := range provider(abstract) {
			if r.check(candidate, abstract) == nil {
				return Binding{Source: abstract, Concrete: candidate, Strategy: StrategyConvention}, nil
			}
		}
	}
	return Binding{}, fmt.Errorf("%w for %s: no strategy produced a candidate", ErrNoConcreteType, abstract)
}

func (r *Resolver) check(candidate, abstract typeid.ID) error {
	entry, ok := r.catalog.Lookup(candidate)
	switch {
	case !ok:
		return fmt.Errorf("%w for %s: %s is not registered", ErrNoConcreteType, abstract, candidate)
	case entry.Abstract:
		return fmt.Errorf("%w for %s: %s is itself abstract", ErrNoConcreteType, abstract, candidate)
	case !r.catalog.Implements(candidate, abstract):
		return fmt.Errorf("%w for %s: %s does not implement it", ErrNoConcreteType, abstract, candidate)
	}
	return nil
}
