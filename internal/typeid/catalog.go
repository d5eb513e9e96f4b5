package typeid

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrDuplicate indicates an identity already bound to a different Go type.
	ErrDuplicate = errors.New("typeid: duplicate registration")
	// ErrUnknown indicates a lookup for an identity that was never registered.
	ErrUnknown = errors.New("typeid: unknown type")
)

// Entry describes a registered type.
type Entry struct {
	ID       ID
	Type     reflect.Type
	Abstract bool
	// Concrete is the explicit concrete-class binding of an abstract type.
	Concrete ID
	// New constructs an instance. Nil for abstract types without a constructor.
	New func() any
	Doc string
}

// Option modifies an Entry at registration time.
type Option func(*Entry)

// WithConstructor overrides the default reflect.New based constructor.
func WithConstructor(fn func() any) Option { return func(e *Entry) { e.New = fn } }

// WithAbstract marks a non-interface type as abstract.
func WithAbstract() Option { return func(e *Entry) { e.Abstract = true } }

// WithConcrete attaches an explicit concrete-class binding to an abstract type.
func WithConcrete(id ID) Option { return func(e *Entry) { e.Concrete = id } }

// WithDoc attaches a human-readable note to the entry.
func WithDoc(doc string) Option { return func(e *Entry) { e.Doc = doc } }

// Catalog maps type identities to compiled Go types. It is safe for
// concurrent use and typically shared by the whole process.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[ID]*Entry
	byType map[reflect.Type]ID
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:   make(map[ID]*Entry),
		byType: make(map[reflect.Type]ID),
	}
}

// Register binds id to t. Interface types are always abstract. Registering the
// same (id, type) pair twice is a no-op so that modules sharing a type can each
// install it.
func (c *Catalog) Register(id ID, t reflect.Type, opts ...Option) error {
	if _, err := Parse(string(id)); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("typeid: nil type for %q", id)
	}

	e := &Entry{ID: id, Type: t, Abstract: t.Kind() == reflect.Interface}
	for _, fn := range opts {
		fn(e)
	}
	if !e.Concrete.IsZero() && !e.Abstract {
		return fmt.Errorf("typeid: concrete binding on non-abstract type %q", id)
	}
	if e.New == nil && !e.Abstract {
		e.New = func() any { return reflect.New(t).Interface() }
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[id]; ok {
		if existing.Type == t {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %s, not %s", ErrDuplicate, id, existing.Type, t)
	}
	c.byID[id] = e
	if _, ok := c.byType[t]; !ok {
		c.byType[t] = id
	}
	return nil
}

// Register is a generic helper that binds id to the Go type T.
func Register[T any](c *Catalog, id ID, opts ...Option) error {
	return c.Register(id, reflect.TypeFor[T](), opts...)
}

// MustRegister panics on registration error.
func MustRegister[T any](c *Catalog, id ID, opts ...Option) {
	if err := Register[T](c, id, opts...); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the entry registered for id.
func (c *Catalog) Lookup(id ID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IDOf returns the identity first registered for t.
func (c *Catalog) IDOf(t reflect.Type) (ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byType[t]
	return id, ok
}

// IsAbstract reports whether id is registered and abstract. Unknown identities
// are treated as concrete.
func (c *Catalog) IsAbstract(id ID) bool {
	e, ok := c.Lookup(id)
	return ok && e.Abstract
}

// Implements reports whether the registered type concreteID is a concrete
// implementation of the registered abstract type abstractID.
func (c *Catalog) Implements(concreteID, abstractID ID) bool {
	concrete, ok := c.Lookup(concreteID)
	if !ok || concrete.Abstract {
		return false
	}
	abstract, ok := c.Lookup(abstractID)
	if !ok {
		return false
	}
	return Satisfies(concrete.Type, abstract.Type)
}

// New constructs an instance of the type registered for id.
func (c *Catalog) New(id ID) (any, error) {
	e, ok := c.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	if e.New == nil {
		return nil, fmt.Errorf("typeid: %q is abstract and has no constructor", id)
	}
	return e.New(), nil
}

// IDs returns all registered identities, sorted.
func (c *Catalog) IDs() []ID {
	c.mu.RLock()
	ids := make([]ID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Satisfies reports whether t (or *t) can stand in for target. Interface
// targets require method-set implementation; struct targets require t to
// embed the target directly.
func Satisfies(t, target reflect.Type) bool {
	if t == nil || target == nil {
		return false
	}
	if t == target {
		return true
	}
	if target.Kind() == reflect.Interface {
		return t.Implements(target) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(target))
	}

	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < base.NumField(); i++ {
		f := base.Field(i)
		if !f.Anonymous {
			continue
		}
		if f.Type == target || (f.Type.Kind() == reflect.Pointer && f.Type.Elem() == target) {
			return true
		}
	}
	return false
}
