package props

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rolebinder/internal/typeid"
)

func TestMapBag(t *testing.T) {
	var zero MapBag
	_, ok := zero.Get("a")
	assert.False(t, ok)
	zero.Set("a", "1")
	assert.Equal(t, 1, zero.Len())

	b := NewMapBag(map[string]string{"z": "26", "a": "1"})
	v, ok := b.Get("z")
	require.True(t, ok)
	assert.Equal(t, "26", v)
	assert.Equal(t, []string{"a", "z"}, b.Keys())
}

func TestModule_Manifest(t *testing.T) {
	m, err := (&Module{}).Manifest(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, "props", m.Module)
	require.Len(t, m.Concretes, 1)
	assert.Equal(t, "props.Bag", m.Concretes[0].Abstract)
	assert.Equal(t, "props.MapBag", m.Concretes[0].Concrete)
	require.Len(t, m.References, 1)
	assert.Equal(t, "stream", m.References[0].Name)
	assert.True(t, m.References[0].Deferred)
	assert.Empty(t, m.References[0].Location, "stream is an in-process module")
}

func TestModule_InstallTypes(t *testing.T) {
	c := typeid.NewCatalog()
	require.NoError(t, (&Module{}).InstallTypes(c))
	require.NoError(t, (&Module{}).InstallTypes(c), "installing twice is harmless")

	assert.True(t, c.IsAbstract(BagID))
	assert.True(t, c.Implements(MapBagID, BagID))
	v, err := c.New(MapBagID)
	require.NoError(t, err)
	assert.IsType(t, &MapBag{}, v)
}
