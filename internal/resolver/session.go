package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/typeid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	catalog    *typeid.Catalog
	contracts  *role.Table
	probe      module.Probe
	tracer     trace.Tracer
	providers  []concrete.ProviderFunc
	customProv bool
	refs       []module.Reference
}

// WithCatalog shares an existing type catalog.
func WithCatalog(c *typeid.Catalog) Option { return func(o *options) { o.catalog = c } }

// WithContracts replaces the built-in role contracts.
func WithContracts(t *role.Table) Option { return func(o *options) { o.contracts = t } }

// WithProbe sets the initial probe.
func WithProbe(p module.Probe) Option { return func(o *options) { o.probe = p } }

// WithTracer sets the tracer for resolution spans. The global tracer is used
// otherwise.
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

// WithConcreteProviders replaces the naming-convention fallback of
// concrete-class resolution.
func WithConcreteProviders(p ...concrete.ProviderFunc) Option {
	return func(o *options) { o.providers, o.customProv = p, true }
}

// WithReferences records explicit module references at construction.
func WithReferences(refs ...module.Reference) Option {
	return func(o *options) { o.refs = append(o.refs, refs...) }
}

// Session is a resolution session. All methods are safe for concurrent use.
type Session struct {
	id       uuid.UUID
	catalog  *typeid.Catalog
	registry *registry.Registry
	concrete *concrete.Resolver
	tracer   trace.Tracer

	probeMu sync.RWMutex
	probe   module.Probe

	cache *gocache.Cache
	group singleflight.Group
}

// NewSession creates a session that loads modules with loader.
func NewSession(loader module.Loader, opts ...Option) *Session {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = typeid.NewCatalog()
	}
	if o.contracts == nil {
		o.contracts = role.DefaultTable()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/vk/rolebinder/internal/resolver")
	}

	var concreteOpts []concrete.Option
	if o.customProv {
		concreteOpts = append(concreteOpts, concrete.WithProviders(o.providers...))
	}
	cr := concrete.NewResolver(o.catalog, concreteOpts...)

	s := &Session{
		id:       uuid.New(),
		catalog:  o.catalog,
		registry: registry.New(loader, o.catalog, registry.WithContracts(o.contracts), registry.WithBindingSink(cr)),
		concrete: cr,
		tracer:   o.tracer,
		probe:    o.probe,
		cache:    gocache.New(gocache.NoExpiration, 0),
	}
	for _, ref := range o.refs {
		s.registry.AddReference(ref)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// Catalog returns the session's type catalog.
func (s *Session) Catalog() *typeid.Catalog { return s.catalog }

// Registry returns the session's adapter registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// SetProbe replaces the active probe. Results already cached are kept.
func (s *Session) SetProbe(p module.Probe) {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	s.probe = p
}

// Probe returns the active probe, which may be nil.
func (s *Session) Probe() module.Probe {
	s.probeMu.RLock()
	defer s.probeMu.RUnlock()
	return s.probe
}

// AddReference records an explicit module reference without loading it.
func (s *Session) AddReference(ref module.Reference) bool {
	return s.registry.AddReference(ref)
}

// Preload scans every explicit reference that is not deferred, including
// non-deferred references discovered along the way. Load failures and
// configuration errors are joined into the returned error.
func (s *Session) Preload(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	seen := make(map[string]struct{})
	for {
		progressed := false
		for _, ref := range s.registry.References() {
			if _, ok := seen[ref.Name()]; ok || ref.Deferred() {
				continue
			}
			seen[ref.Name()] = struct{}{}
			progressed = true
			if _, err := s.registry.ScanModule(ctx, ref); err != nil {
				errs = append(errs, err)
			}
		}
		if !progressed {
			break
		}
	}
	logger.Debug("Preload finished.", "modules", len(seen), "errors", len(errs))
	return errors.Join(errs...)
}

// Cached returns the cached terminal resolution for the pair, if any.
func (s *Session) Cached(r role.Role, adaptee typeid.ID) (Resolution, bool) {
	v, ok := s.cache.Get(cacheKey(r, adaptee))
	if !ok {
		return Resolution{}, false
	}
	return v.(Resolution), true
}

// Resolve returns the adapter for role r and adaptee. Not finding one is not
// an error: the resolution is returned with StateNotFound. The error is
// non-nil only when this call's own scan found a configuration error; the
// resolution then has StateUnresolved and is not cached. Modules that failed
// in earlier scans are skipped and listed in Failures.
func (s *Session) Resolve(ctx context.Context, r role.Role, adaptee typeid.ID) (Resolution, error) {
	if res, ok := s.Cached(r, adaptee); ok {
		return res, nil
	}

	k := cacheKey(r, adaptee)
	v, err, _ := s.group.Do(k, func() (any, error) {
		if res, ok := s.Cached(r, adaptee); ok {
			return res, nil
		}
		res, err := s.resolve(ctx, r, adaptee)
		if err != nil {
			return res, err
		}
		if addErr := s.cache.Add(k, res, gocache.NoExpiration); addErr != nil {
			if existing, ok := s.Cached(r, adaptee); ok {
				return existing, nil
			}
		}
		return res, nil
	})
	return v.(Resolution), err
}

// ResolveWithFallback resolves like Resolve and, when nothing is found,
// resolves the null substitute of adaptee instead. A substitute comes back
// with Fallback set, so it is never mistaken for a direct hit or for
// NotFound.
func (s *Session) ResolveWithFallback(ctx context.Context, r role.Role, adaptee typeid.ID) (Resolution, error) {
	res, err := s.Resolve(ctx, r, adaptee)
	if err != nil || res.State != StateNotFound || r == role.NullSubstitute {
		return res, err
	}

	sub, err := s.Resolve(ctx, role.NullSubstitute, adaptee)
	if err != nil {
		return res, err
	}
	if !sub.Found() {
		return res, nil
	}
	sub.Fallback = true
	sub.Failures = append(append([]error(nil), res.Failures...), sub.Failures...)
	ctxlog.FromContext(ctx).Debug("Null substitute used.", "role", r, "adaptee", adaptee, "adapter", sub.Definition.Adapter)
	return sub, nil
}

// Activate creates an instance of adaptee through its activation provider.
func (s *Session) Activate(ctx context.Context, adaptee typeid.ID) (any, error) {
	res, err := s.Resolve(ctx, role.ActivationProvider, adaptee)
	if err != nil {
		return nil, err
	}
	v, err := res.New(ctx)
	if err != nil {
		return nil, err
	}
	activator, ok := v.(role.Activator)
	if !ok {
		return nil, fmt.Errorf("adapter %s does not implement the %s contract", res.Adapter(), role.ActivationProvider)
	}
	return activator.Activate(ctx, s.catalog, res.Target())
}

// Stream writes value through the streaming source registered for adaptee.
func (s *Session) Stream(ctx context.Context, adaptee typeid.ID, value any, w io.Writer) error {
	res, err := s.Resolve(ctx, role.StreamingSource, adaptee)
	if err != nil {
		return err
	}
	v, err := res.New(ctx)
	if err != nil {
		return err
	}
	source, ok := v.(role.Source)
	if !ok {
		return fmt.Errorf("adapter %s does not implement the %s contract", res.Adapter(), role.StreamingSource)
	}
	return source.Stream(ctx, value, w)
}

func cacheKey(r role.Role, adaptee typeid.ID) string {
	return string(r) + "\x00" + string(adaptee)
}
