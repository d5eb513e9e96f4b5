// Package props provides property bags: string keyed collections of string
// values.
package props

import (
	"context"
	_ "embed"
	"sort"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/hcl"
	"github.com/vk/rolebinder/internal/typeid"
)

//go:embed manifest.hcl
var manifest []byte

// Type identities contributed by this module.
var (
	BagID    = typeid.MustParse("props.Bag")
	MapBagID = typeid.MustParse("props.MapBag")
)

// Bag is the abstract property bag.
type Bag interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Keys() []string
	Len() int
}

// MapBag is the map backed Bag. The zero value is ready to use.
type MapBag struct {
	values map[string]string
}

// NewMapBag creates a bag holding a copy of values.
func NewMapBag(values map[string]string) *MapBag {
	b := &MapBag{}
	for k, v := range values {
		b.Set(k, v)
	}
	return b
}

func (b *MapBag) Get(key string) (string, bool) {
	v, ok := b.values[key]
	return v, ok
}

func (b *MapBag) Set(key, value string) {
	if b.values == nil {
		b.values = make(map[string]string)
	}
	b.values[key] = value
}

// Keys returns the keys in sorted order.
func (b *MapBag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *MapBag) Len() int { return len(b.values) }

// Module implements module.Static for this package.
type Module struct{}

func (m *Module) Name() string { return "props" }

// Manifest decodes the embedded manifest.
func (m *Module) Manifest(ctx context.Context) (*config.Manifest, error) {
	return hcl.NewDecoder().Decode(ctx, "props/manifest.hcl", manifest)
}

// InstallTypes registers Bag and MapBag.
func (m *Module) InstallTypes(c *typeid.Catalog) error {
	if err := typeid.Register[Bag](c, BagID, typeid.WithDoc("abstract property bag")); err != nil {
		return err
	}
	return typeid.Register[MapBag](c, MapBagID,
		typeid.WithConstructor(func() any { return NewMapBag(nil) }),
		typeid.WithDoc("map backed property bag"),
	)
}
