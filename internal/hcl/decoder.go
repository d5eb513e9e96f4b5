package hcl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/schema"
)

// Decoder is the HCL-specific implementation of the config.Decoder interface.
type Decoder struct{}

// NewDecoder creates a new HCL manifest decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Extensions implements config.Decoder.
func (d *Decoder) Extensions() []string { return []string{".hcl"} }

// Decode parses one HCL manifest and translates it into the agnostic model.
func (d *Decoder) Decode(ctx context.Context, filename string, src []byte) (*config.Manifest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding HCL manifest.", "file", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL manifest %s: %w", filename, diags)
	}

	var root schema.Manifest
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL manifest %s: %w", filename, diags)
	}

	m, err := d.translate(ctx, filename, &root)
	if err != nil {
		return nil, fmt.Errorf("failed to translate HCL manifest %s: %w", filename, err)
	}

	logger.Debug("HCL manifest decoded.", "file", filename, "adapters", len(m.Adapters), "concretes", len(m.Concretes), "references", len(m.References))
	return m, nil
}

// translate converts the HCL-specific schema into the agnostic model.
func (d *Decoder) translate(ctx context.Context, filename string, root *schema.Manifest) (*config.Manifest, error) {
	m := &config.Manifest{}

	switch len(root.Modules) {
	case 0:
	case 1:
		m.Module = root.Modules[0].Name
		m.Description = root.Modules[0].Description
	default:
		return nil, fmt.Errorf("at most one module block is allowed, found %d", len(root.Modules))
	}

	for _, a := range root.Adapters {
		adapterType, err := typeExprToID(ctx, a.Type)
		if err != nil {
			return nil, fmt.Errorf("adapter %q %q: %w", a.Role, a.Adaptee, err)
		}
		options, err := optionsFromExpr(ctx, a.Options)
		if err != nil {
			return nil, fmt.Errorf("adapter %q %q: %w", a.Role, a.Adaptee, err)
		}
		m.Adapters = append(m.Adapters, &config.AdapterDeclaration{
			Role:    a.Role,
			Adaptee: a.Adaptee,
			Adapter: adapterType,
			Options: options,
			Origin:  origin(a.Type.Range()),
		})
	}

	for _, c := range root.Concretes {
		concreteType, err := typeExprToID(ctx, c.Type)
		if err != nil {
			return nil, fmt.Errorf("concrete %q: %w", c.Abstract, err)
		}
		m.Concretes = append(m.Concretes, &config.ConcreteDeclaration{
			Abstract: c.Abstract,
			Concrete: concreteType,
			Origin:   origin(c.Type.Range()),
		})
	}

	for _, r := range root.References {
		m.References = append(m.References, &config.ReferenceDeclaration{
			Name:     r.Name,
			Location: resolveLocation(filename, r.Location),
			Deferred: r.Deferred,
			Origin:   filename,
		})
	}

	return m, nil
}

// resolveLocation makes a relative reference location relative to the
// manifest that declares it.
func resolveLocation(filename, location string) string {
	if location == "" || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(filepath.Dir(filename), location)
}

func origin(rng hcl.Range) string {
	return fmt.Sprintf("%s:%d", rng.Filename, rng.Start.Line)
}
