package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/typeid"
)

// Module is an in-memory module for tests. It implements module.Static.
type Module struct {
	ModuleName string
	Decl       *config.Manifest
	// Install, if set, registers the module's types.
	Install func(*typeid.Catalog) error
	// Err, if set, is returned instead of the manifest.
	Err error
}

// Name implements module.Static.
func (m *Module) Name() string { return m.ModuleName }

// Manifest implements module.Static.
func (m *Module) Manifest(context.Context) (*config.Manifest, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Decl, nil
}

// InstallTypes implements module.Static.
func (m *Module) InstallTypes(c *typeid.Catalog) error {
	if m.Install == nil {
		return nil
	}
	return m.Install(c)
}

// Adapters builds a manifest declaring one adapter per triple of
// (role, adaptee, adapter).
func Adapters(triples ...[3]string) *config.Manifest {
	m := &config.Manifest{}
	for _, tr := range triples {
		m.Adapters = append(m.Adapters, &config.AdapterDeclaration{
			Role:    tr[0],
			Adaptee: tr[1],
			Adapter: tr[2],
			Origin:  "test",
		})
	}
	return m
}

// CountingLoader wraps a loader and counts load attempts per module name.
type CountingLoader struct {
	Next module.Loader
	// OnLoad, if set, runs before each delegated load.
	OnLoad func(ref module.Reference)

	total  atomic.Int64
	mu     sync.Mutex
	counts map[string]int
	order  []string
}

// NewCountingLoader wraps next.
func NewCountingLoader(next module.Loader) *CountingLoader {
	return &CountingLoader{Next: next, counts: make(map[string]int)}
}

// Load implements module.Loader.
func (c *CountingLoader) Load(ctx context.Context, ref module.Reference) (module.Loaded, error) {
	c.total.Add(1)
	c.mu.Lock()
	c.counts[ref.Name()]++
	c.order = append(c.order, ref.Name())
	c.mu.Unlock()

	if c.OnLoad != nil {
		c.OnLoad(ref)
	}
	return c.Next.Load(ctx, ref)
}

// Count returns how many times name was loaded.
func (c *CountingLoader) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Total returns the number of loads across all modules.
func (c *CountingLoader) Total() int { return int(c.total.Load()) }

// Order returns module names in the order they were loaded.
func (c *CountingLoader) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}
