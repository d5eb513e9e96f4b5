package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		manifest *Manifest
		errPart  string
	}{
		{name: "nil manifest", manifest: nil},
		{name: "empty manifest", manifest: &Manifest{}},
		{
			name: "complete declarations",
			manifest: &Manifest{
				Adapters:   []*AdapterDeclaration{{Role: "streaming_source", Adaptee: "a.X", Adapter: "a.Y"}},
				Concretes:  []*ConcreteDeclaration{{Abstract: "a.I", Concrete: "a.Impl"}},
				References: []*ReferenceDeclaration{{Name: "other", Deferred: true}},
			},
		},
		{
			name:     "missing role",
			manifest: &Manifest{Adapters: []*AdapterDeclaration{{Adaptee: "a.X", Adapter: "a.Y", Origin: "m.hcl:3"}}},
			errPart:  "m.hcl:3: adapter declaration is missing a role",
		},
		{
			name:     "missing adaptee",
			manifest: &Manifest{Adapters: []*AdapterDeclaration{{Role: "r", Adapter: "a.Y"}}},
			errPart:  "<unknown>: adapter declaration for role \"r\" is missing an adaptee type",
		},
		{
			name:     "missing adapter",
			manifest: &Manifest{Adapters: []*AdapterDeclaration{{Role: "r", Adaptee: "a.X"}}},
			errPart:  "missing an adapter type",
		},
		{
			name:     "half a concrete binding",
			manifest: &Manifest{Concretes: []*ConcreteDeclaration{{Abstract: "a.I"}}},
			errPart:  "needs both",
		},
		{
			name:     "nameless reference",
			manifest: &Manifest{References: []*ReferenceDeclaration{{Location: "x.hcl"}}},
			errPart:  "missing a name",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.manifest.Validate()
			if tc.errPart == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errPart)
		})
	}
}
