package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/testutil"
	"github.com/vk/rolebinder/internal/typeid"
)

type lineSource struct{}

func (lineSource) Stream(context.Context, any, io.Writer) error { return nil }

type notASource struct{}

type recordingSink struct {
	mu    sync.Mutex
	bound map[typeid.ID]typeid.ID
	err   error
}

func (s *recordingSink) BindAll(_ context.Context, decls []concrete.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.bound == nil {
		s.bound = make(map[typeid.ID]typeid.ID)
	}
	for _, d := range decls {
		s.bound[d.Abstract] = d.Concrete
	}
	return nil
}

func newScanRegistry(t *testing.T, mods ...*testutil.Module) (*Registry, *testutil.CountingLoader, *recordingSink) {
	t.Helper()
	statics := make([]module.Static, len(mods))
	for i, m := range mods {
		statics[i] = m
	}
	loader := testutil.NewCountingLoader(module.NewStaticLoader(statics...))
	sink := &recordingSink{}
	return New(loader, typeid.NewCatalog(), WithBindingSink(sink)), loader, sink
}

func ref(name string) module.Reference { return module.MustReference(name, "", false) }

func TestScanModule_InsertsOnce(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	reg, loader, _ := newScanRegistry(t, &testutil.Module{
		ModuleName: "m",
		Decl:       testutil.Adapters([3]string{"streaming_source", "a.X", "m.Y"}, [3]string{"null_substitute", "a.X", "m.Z"}),
	})

	defs, err := reg.ScanModule(ctx, ref("m"))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, role.StreamingSource, defs[0].Role)
	assert.Equal(t, "m", defs[0].Module.Name())
	assert.False(t, defs[0].Resolved(), "names unknown to the catalog stay unresolved")
	assert.Equal(t, Scanned, reg.Status("m"))

	again, err := reg.ScanModule(ctx, ref("m"))
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 1, loader.Count("m"))
	assert.Equal(t, 2, reg.Len())
}

func TestScanModule_ConcurrentSingleScan(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	reg, loader, _ := newScanRegistry(t, &testutil.Module{
		ModuleName: "m",
		Decl:       testutil.Adapters([3]string{"streaming_source", "a.X", "m.Y"}),
	})

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		nonEmpty int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defs, err := reg.ScanModule(ctx, ref("m"))
			assert.NoError(t, err)
			_, ok := reg.Lookup(role.StreamingSource, "a.X")
			assert.True(t, ok, "definitions are visible once any caller returns")
			if len(defs) > 0 {
				mu.Lock()
				nonEmpty++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loader.Count("m"))
	assert.Equal(t, 1, nonEmpty)
	assert.Equal(t, 1, reg.Len())
}

func TestScanModule_LoadFailureIsRecorded(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	reg, loader, _ := newScanRegistry(t)

	_, err := reg.ScanModule(ctx, ref("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, module.ErrLoad)

	_, again := reg.ScanModule(ctx, ref("missing"))
	assert.ErrorIs(t, again, module.ErrLoad)
	assert.ErrorIs(t, again, ErrPreviouslyFailed)
	var recorded *RecordedError
	require.ErrorAs(t, again, &recorded)
	assert.Equal(t, err, recorded.Err)
	assert.Equal(t, 1, loader.Count("missing"), "failed modules are not reloaded")
	assert.Equal(t, Failed, reg.Status("missing"))
	assert.Equal(t, map[string]error{"missing": err}, reg.Failures())
}

func TestScanModule_LoadErrors(t *testing.T) {
	boom := errors.New("boom")
	testCases := []struct {
		name string
		mod  *testutil.Module
	}{
		{name: "manifest error", mod: &testutil.Module{ModuleName: "m", Err: boom}},
		{name: "install error", mod: &testutil.Module{ModuleName: "m", Install: func(*typeid.Catalog) error { return boom }}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg, _, _ := newScanRegistry(t, tc.mod)
			_, err := reg.ScanModule(context.Background(), ref("m"))
			assert.ErrorIs(t, err, module.ErrLoad)
			assert.ErrorIs(t, err, boom)
		})
	}

	plain := New(module.LoaderFunc(func(context.Context, module.Reference) (module.Loaded, error) {
		return nil, boom
	}), nil)
	_, err := plain.ScanModule(context.Background(), ref("x"))
	var loadErr *module.LoadError
	require.ErrorAs(t, err, &loadErr, "bare loader errors are wrapped")
	assert.Equal(t, "x", loadErr.Ref.Name())

	_, err = New(nil, nil).ScanModule(context.Background(), ref("y"))
	assert.ErrorIs(t, err, module.ErrLoad)
}

func TestScanModule_EmptyModule(t *testing.T) {
	reg, _, _ := newScanRegistry(t,
		&testutil.Module{ModuleName: "nil"},
		&testutil.Module{ModuleName: "empty", Decl: &config.Manifest{}},
	)
	for _, name := range []string{"nil", "empty"} {
		defs, err := reg.ScanModule(context.Background(), ref(name))
		assert.NoError(t, err)
		assert.Empty(t, defs)
		assert.Equal(t, Scanned, reg.Status(name))
	}
}

func TestScanModule_ConfigErrors(t *testing.T) {
	installSources := func(c *typeid.Catalog) error {
		typeid.MustRegister[lineSource](c, "m.Line")
		typeid.MustRegister[notASource](c, "m.NotSource")
		return nil
	}

	testCases := []struct {
		name    string
		decl    *config.Manifest
		wantMsg string
	}{
		{
			name:    "missing role",
			decl:    testutil.Adapters([3]string{"", "a.X", "m.Y"}),
			wantMsg: "missing a role",
		},
		{
			name:    "missing adaptee",
			decl:    testutil.Adapters([3]string{"streaming_source", "", "m.Y"}),
			wantMsg: "missing an adaptee type",
		},
		{
			name:    "empty adapter",
			decl:    testutil.Adapters([3]string{"streaming_source", "a.X", ""}),
			wantMsg: "missing an adapter type",
		},
		{
			name:    "invalid role",
			decl:    testutil.Adapters([3]string{"Not A Role", "a.X", "m.Y"}),
			wantMsg: "invalid role",
		},
		{
			name:    "invalid adaptee",
			decl:    testutil.Adapters([3]string{"streaming_source", "a..X", "m.Y"}),
			wantMsg: "empty segment",
		},
		{
			name:    "contract violation",
			decl:    testutil.Adapters([3]string{"streaming_source", "a.X", "m.NotSource"}),
			wantMsg: "does not implement",
		},
		{
			name: "invalid concrete",
			decl: &config.Manifest{Concretes: []*config.ConcreteDeclaration{
				{Abstract: "a.I", Concrete: "a.1", Origin: "test"},
			}},
			wantMsg: "invalid type identity segment",
		},
		{
			name: "reference without name",
			decl: &config.Manifest{References: []*config.ReferenceDeclaration{
				{Origin: "test"},
			}},
			wantMsg: "missing a name",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg, _, sink := newScanRegistry(t, &testutil.Module{ModuleName: "m", Decl: tc.decl, Install: installSources})
			_, err := reg.ScanModule(context.Background(), ref("m"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.NotErrorIs(t, err, module.ErrLoad)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "m", cfgErr.Module)
			assert.ErrorContains(t, err, tc.wantMsg)
			assert.Zero(t, reg.Len(), "an invalid module contributes nothing")
			assert.Empty(t, sink.bound)
		})
	}
}

func TestScanModule_ResolvesContracts(t *testing.T) {
	reg, _, _ := newScanRegistry(t, &testutil.Module{
		ModuleName: "m",
		Decl:       testutil.Adapters([3]string{"streaming_source", "a.X", "m.Line"}),
		Install: func(c *typeid.Catalog) error {
			return typeid.Register[lineSource](c, "m.Line")
		},
	})
	defs, err := reg.ScanModule(context.Background(), ref("m"))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].Resolved())
	assert.Equal(t, "registry.lineSource", defs[0].AdapterType.String())
}

func TestScanModule_ForwardsBindingsAndReferences(t *testing.T) {
	decl := &config.Manifest{
		Concretes: []*config.ConcreteDeclaration{{Abstract: "a.I", Concrete: "a.Impl", Origin: "m:3"}},
		References: []*config.ReferenceDeclaration{
			{Name: "later", Deferred: true, Origin: "m"},
			{Name: "now", Origin: "m"},
		},
	}
	reg, loader, sink := newScanRegistry(t, &testutil.Module{ModuleName: "m", Decl: decl})

	_, err := reg.ScanModule(context.Background(), ref("m"))
	require.NoError(t, err)
	assert.Equal(t, map[typeid.ID]typeid.ID{"a.I": "a.Impl"}, sink.bound)

	pending := reg.PendingReferences()
	require.Len(t, pending, 2)
	assert.Equal(t, "later", pending[0].Name())
	assert.True(t, pending[0].Deferred())
	assert.Equal(t, 0, loader.Count("later"), "recording a reference never loads it")
}

func TestScanModule_BindingRejected(t *testing.T) {
	decl := &config.Manifest{
		Concretes: []*config.ConcreteDeclaration{{Abstract: "a.I", Concrete: "a.Impl", Origin: "m:3"}},
	}
	dup := errors.New("duplicate binding")
	reg, _, sink := newScanRegistry(t, &testutil.Module{ModuleName: "m", Decl: decl})
	sink.err = dup

	_, err := reg.ScanModule(context.Background(), ref("m"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, dup)
	assert.True(t, IsFreshConfigError(err))
	assert.Equal(t, Failed, reg.Status("m"))

	_, again := reg.ScanModule(context.Background(), ref("m"))
	assert.ErrorIs(t, again, ErrConfiguration)
	assert.False(t, IsFreshConfigError(again), "later callers see the recorded failure")
}

func TestScanModule_BindingsAreAllOrNothing(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	catalog := typeid.NewCatalog()
	resolver := concrete.NewResolver(catalog, concrete.WithProviders())

	earlier := &testutil.Module{ModuleName: "earlier", Decl: &config.Manifest{
		Concretes: []*config.ConcreteDeclaration{{Abstract: "b.I", Concrete: "b.Impl", Origin: "earlier:1"}},
	}}
	mixed := &testutil.Module{ModuleName: "mixed", Decl: &config.Manifest{
		Concretes: []*config.ConcreteDeclaration{
			{Abstract: "a.I", Concrete: "a.Impl", Origin: "mixed:1"},
			{Abstract: "b.I", Concrete: "b.Other", Origin: "mixed:2"},
		},
	}}
	loader := module.NewStaticLoader(earlier, mixed)
	reg := New(loader, catalog, WithBindingSink(resolver))

	_, err := reg.ScanModule(ctx, ref("earlier"))
	require.NoError(t, err)

	_, err = reg.ScanModule(ctx, ref("mixed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, concrete.ErrDuplicateBinding)
	assert.ErrorContains(t, err, "mixed:2")

	// The valid first declaration of the rejected module must not have been
	// applied: binding it now to something else succeeds.
	assert.NoError(t, resolver.Bind(ctx, "a.I", "a.Elsewhere", "later:1"))
	assert.ErrorIs(t, resolver.Bind(ctx, "b.I", "b.Other", "later:2"), concrete.ErrDuplicateBinding)
}

func TestScanStatus_String(t *testing.T) {
	assert.Equal(t, "not_scanned", NotScanned.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "scanned", Scanned.String())
	assert.Equal(t, "failed", Failed.String())
}
