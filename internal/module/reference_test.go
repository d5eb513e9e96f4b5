package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReference(t *testing.T) {
	ref, err := NewReference("props", "/mods/props.module.hcl", true)
	require.NoError(t, err)
	assert.Equal(t, "props", ref.Name())
	assert.Equal(t, "/mods/props.module.hcl", ref.Location())
	assert.True(t, ref.Deferred())
	assert.False(t, ref.IsZero())
	assert.Equal(t, "props (/mods/props.module.hcl) [deferred]", ref.String())

	_, err = NewReference("", "x", false)
	assert.Error(t, err)
	assert.Panics(t, func() { MustReference("", "", false) })
	assert.True(t, Reference{}.IsZero())
}

func TestReference_AsDeferred(t *testing.T) {
	ref := MustReference("stream", "", false)
	deferred := ref.AsDeferred()
	assert.False(t, ref.Deferred(), "the original is unchanged")
	assert.True(t, deferred.Deferred())
	assert.Equal(t, "stream [deferred]", deferred.String())
}
