package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/resolver"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/testutil"
	"github.com/vk/rolebinder/modules/props"
)

const extYAML = `module: ext
adapters:
  - role: inspector
    adaptee: props.MapBag
    type: ext.Inspector
`

const brokenHCL = `adapter "streaming_source" "props.MapBag" {
  type = props.MapBag
}
`

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *testutil.SafeBuffer) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.DisableProbe = true
	if mutate != nil {
		mutate(&cfg)
	}
	valid, err := NewConfig(cfg)
	require.NoError(t, err)

	buf := &testutil.SafeBuffer{}
	a, err := NewApp(buf, valid)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, buf
}

func TestApp_StartScansEagerCoreModules(t *testing.T) {
	a, _ := newTestApp(t, nil)
	require.NoError(t, a.Start())

	reg := a.Session().Registry()
	assert.Equal(t, registry.Scanned, reg.Status("props"))
	assert.Equal(t, registry.Scanned, reg.Status("nullobj"))
	assert.Equal(t, registry.NotScanned, reg.Status("stream"), "stream is deferred")
}

func TestApp_ResolveThroughConcreteType(t *testing.T) {
	a, _ := newTestApp(t, nil)
	require.NoError(t, a.Start())

	res, err := a.Resolve(a.Context(), "streaming_source", "props.Bag", false)
	require.NoError(t, err)

	require.True(t, res.Found())
	assert.Equal(t, "stream", res.Definition.Module.Name())
	require.NotNil(t, res.Via)
	assert.Equal(t, props.MapBagID, res.Via.Concrete)
	assert.Equal(t, concrete.StrategyDeclared, res.Via.Strategy)
	assert.Equal(t, registry.Scanned, a.Session().Registry().Status("stream"))
}

func TestApp_ResolveWithFallback(t *testing.T) {
	a, _ := newTestApp(t, nil)
	require.NoError(t, a.Start())

	res, err := a.Resolve(a.Context(), "inspector", "props.Bag", false)
	require.NoError(t, err)
	assert.Equal(t, resolver.StateNotFound, res.State)

	res, err = a.Resolve(a.Context(), "inspector", "props.Bag", true)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.True(t, res.Fallback)
	assert.Equal(t, role.NullSubstitute, res.Role)
	assert.Equal(t, "nullobj", res.Definition.Module.Name())
}

func TestApp_ResolveRejectsMalformedInput(t *testing.T) {
	a, _ := newTestApp(t, nil)

	_, err := a.Resolve(a.Context(), "Not A Role", "props.Bag", false)
	assert.Error(t, err)
	_, err = a.Resolve(a.Context(), "streaming_source", "", false)
	assert.Error(t, err)
}

func TestApp_ActivateAndStream(t *testing.T) {
	a, _ := newTestApp(t, nil)
	require.NoError(t, a.Start())
	ctx := a.Context()

	v, err := a.Session().Activate(ctx, props.MapBagID)
	require.NoError(t, err)
	bag, ok := v.(props.Bag)
	require.True(t, ok, "activated value is a bag, got %T", v)
	bag.Set("b", "2")
	bag.Set("a", "1")

	var out bytes.Buffer
	require.NoError(t, a.Session().Stream(ctx, props.MapBagID, bag, &out))
	assert.Equal(t, "a=1\nb=2\n", out.String())
}

func TestApp_FileModules(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"mods/nested/ext.module.yaml": extYAML,
		"mods/README.md":              "not a module",
	})

	a, _ := newTestApp(t, func(c *Config) { c.ModulesPath = filepath.Join(dir, "mods") })
	require.NoError(t, a.Start())
	assert.Equal(t, registry.NotScanned, a.Session().Registry().Status("ext"), "modules path entries are deferred")

	res, err := a.Resolve(a.Context(), "inspector", "props.MapBag", false)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "ext", res.Definition.Module.Name())
	assert.Equal(t, "ext.Inspector", string(res.Definition.Adapter))
}

func TestApp_EagerReferenceConfigErrorFailsStart(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"broken.module.hcl": brokenHCL})

	a, _ := newTestApp(t, func(c *Config) {
		c.References = []string{filepath.Join(dir, "broken.module.hcl")}
	})
	err := a.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrConfiguration)
}

func TestApp_MissingReferenceIsOnlyWarned(t *testing.T) {
	a, buf := newTestApp(t, func(c *Config) {
		c.References = []string{filepath.Join(t.TempDir(), "gone.module.hcl")}
	})
	require.NoError(t, a.Start())
	assert.Contains(t, buf.String(), "Some modules failed to load.")
	assert.Equal(t, registry.Failed, a.Session().Registry().Status("gone"))
}

func TestApp_ScanAllFindsProbeCandidates(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"ext.module.yaml": extYAML})

	a, _ := newTestApp(t, func(c *Config) {
		c.DisableProbe = false
		c.ProbeDir = dir
	})
	require.NoError(t, a.ScanAll())

	var names []string
	for ref := range a.Candidates() {
		names = append(names, ref.Name())
	}
	assert.Equal(t, []string{"ext"}, names)

	roles := make(map[string]bool)
	for _, def := range a.Definitions() {
		roles[string(def.Role)+" "+string(def.Adaptee)] = true
	}
	assert.True(t, roles["streaming_source props.MapBag"], "deferred modules are scanned")
	assert.True(t, roles["inspector props.MapBag"], "probe candidates are scanned")
	assert.True(t, roles["activation_provider props.MapBag"])
	assert.True(t, roles["null_substitute props.Bag"])
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "mixed case is normalized", mutate: func(c *Config) { c.LogFormat, c.LogLevel = "JSON", "Warn" }},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log-format"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "loud"},
		{name: "bad port", mutate: func(c *Config) { c.ServerPort = 70000 }, wantErr: "invalid server-port"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			got, err := NewConfig(cfg)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(cfg.LogFormat), got.LogFormat)
			assert.Equal(t, strings.ToLower(cfg.LogLevel), got.LogLevel)
		})
	}
}
