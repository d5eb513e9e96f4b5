// Package nullobj provides null-object substitutes.
package nullobj

import (
	"context"
	_ "embed"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/hcl"
	"github.com/vk/rolebinder/internal/typeid"
	"github.com/vk/rolebinder/modules/props"
)

//go:embed manifest.hcl
var manifest []byte

var EmptyBagID = typeid.MustParse("nullobj.EmptyBag")

// EmptyBag is a props.Bag that holds nothing and ignores writes.
type EmptyBag struct{}

var _ props.Bag = EmptyBag{}

func (EmptyBag) Get(string) (string, bool) { return "", false }
func (EmptyBag) Set(string, string)        {}
func (EmptyBag) Keys() []string            { return nil }
func (EmptyBag) Len() int                  { return 0 }

// Module implements module.Static for this package.
type Module struct{}

func (m *Module) Name() string { return "nullobj" }

func (m *Module) Manifest(ctx context.Context) (*config.Manifest, error) {
	return hcl.NewDecoder().Decode(ctx, "nullobj/manifest.hcl", manifest)
}

// InstallTypes registers EmptyBag. The props types are installed too so the
// substitute can be checked against props.Bag whatever the scan order.
func (m *Module) InstallTypes(c *typeid.Catalog) error {
	if err := (&props.Module{}).InstallTypes(c); err != nil {
		return err
	}
	return typeid.Register[EmptyBag](c, EmptyBagID)
}
