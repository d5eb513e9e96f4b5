// Package activation provides the activation provider that creates objects
// through the type catalog.
package activation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/hcl"
	"github.com/vk/rolebinder/internal/typeid"
)

//go:embed manifest.hcl
var manifest []byte

var ConstructorID = typeid.MustParse("activation.Constructor")

// Constructor activates any concrete type registered in the catalog.
type Constructor struct{}

// Activate implements role.Activator.
func (Constructor) Activate(ctx context.Context, catalog *typeid.Catalog, adaptee typeid.ID) (any, error) {
	if catalog == nil {
		return nil, errors.New("activation requires a type catalog")
	}
	if catalog.IsAbstract(adaptee) {
		return nil, fmt.Errorf("cannot activate abstract type %s", adaptee)
	}
	v, err := catalog.New(adaptee)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Object activated.", "type", adaptee)
	return v, nil
}

// Module implements module.Static for this package.
type Module struct{}

func (m *Module) Name() string { return "activation" }

func (m *Module) Manifest(ctx context.Context) (*config.Manifest, error) {
	return hcl.NewDecoder().Decode(ctx, "activation/manifest.hcl", manifest)
}

func (m *Module) InstallTypes(c *typeid.Catalog) error {
	return typeid.Register[Constructor](c, ConstructorID)
}
