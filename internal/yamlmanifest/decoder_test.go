package yamlmanifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	src := `module: nullobj
description: Null-object substitutes
adapters:
  - role: null_substitute
    adaptee: props.Bag
    type: nullobj.EmptyBag
    options:
      reason: fallback
concretes:
  - abstract: props.Bag
    type: props.MapBag
references:
  - name: stream
    location: stream.module.yaml
    deferred: true
`
	m, err := NewDecoder().Decode(context.Background(), "mods/nullobj.module.yaml", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "nullobj", m.Module)
	require.Len(t, m.Adapters, 1)
	assert.Equal(t, "null_substitute", m.Adapters[0].Role)
	assert.Equal(t, "props.Bag", m.Adapters[0].Adaptee)
	assert.Equal(t, "nullobj.EmptyBag", m.Adapters[0].Adapter)
	assert.Equal(t, map[string]string{"reason": "fallback"}, m.Adapters[0].Options)
	assert.Equal(t, "mods/nullobj.module.yaml:4", m.Adapters[0].Origin)

	require.Len(t, m.Concretes, 1)
	assert.Equal(t, "props.MapBag", m.Concretes[0].Concrete)
	assert.Equal(t, "mods/nullobj.module.yaml:10", m.Concretes[0].Origin)

	require.Len(t, m.References, 1)
	assert.Equal(t, "mods/stream.module.yaml", m.References[0].Location)
	assert.True(t, m.References[0].Deferred)
}

func TestDecoder_EmptyDocument(t *testing.T) {
	m, err := NewDecoder().Decode(context.Background(), "empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, m.Adapters)
}

func TestDecoder_Errors(t *testing.T) {
	_, err := NewDecoder().Decode(context.Background(), "bad.yaml", []byte("adapters: [role: x"))
	assert.ErrorContains(t, err, "failed to parse YAML manifest bad.yaml")

	_, err = NewDecoder().Decode(context.Background(), "typo.yaml", []byte("adaptors: []\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestDecoder_MissingFieldsReachValidation(t *testing.T) {
	m, err := NewDecoder().Decode(context.Background(), "m.yaml", []byte("adapters:\n  - adaptee: a.X\n    type: a.Y\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, m.Validate(), "m.yaml:2: adapter declaration is missing a role")
}
