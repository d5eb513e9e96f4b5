// Package yamlmanifest provides the YAML implementation of config.Decoder.
package yamlmanifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// manifestYAML represents the YAML file structure.
type manifestYAML struct {
	Module      string          `yaml:"module,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Adapters    []adapterYAML   `yaml:"adapters,omitempty"`
	Concretes   []concreteYAML  `yaml:"concretes,omitempty"`
	References  []referenceYAML `yaml:"references,omitempty"`
}

type adapterYAML struct {
	Role    string            `yaml:"role"`
	Adaptee string            `yaml:"adaptee"`
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options,omitempty"`
	line    int
}

type concreteYAML struct {
	Abstract string `yaml:"abstract"`
	Type     string `yaml:"type"`
	line     int
}

type referenceYAML struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location,omitempty"`
	Deferred bool   `yaml:"deferred,omitempty"`
}

// UnmarshalYAML records the source line of each adapter entry.
func (a *adapterYAML) UnmarshalYAML(node *yaml.Node) error {
	type plain adapterYAML
	if err := node.Decode((*plain)(a)); err != nil {
		return err
	}
	a.line = node.Line
	return nil
}

// UnmarshalYAML records the source line of each concrete entry.
func (c *concreteYAML) UnmarshalYAML(node *yaml.Node) error {
	type plain concreteYAML
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.line = node.Line
	return nil
}

// Decoder is the YAML-specific implementation of config.Decoder.
type Decoder struct{}

// NewDecoder creates a new YAML manifest decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Extensions implements config.Decoder.
func (d *Decoder) Extensions() []string { return []string{".yaml", ".yml"} }

// Decode parses one YAML manifest. Unknown fields are rejected.
func (d *Decoder) Decode(ctx context.Context, filename string, src []byte) (*config.Manifest, error) {
	ctxlog.FromContext(ctx).Debug("Decoding YAML manifest.", "file", filename)

	var raw manifestYAML
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML manifest %s: %w", filename, err)
	}

	m := &config.Manifest{
		Module:      raw.Module,
		Description: raw.Description,
	}
	for _, a := range raw.Adapters {
		m.Adapters = append(m.Adapters, &config.AdapterDeclaration{
			Role:    a.Role,
			Adaptee: a.Adaptee,
			Adapter: a.Type,
			Options: a.Options,
			Origin:  fmt.Sprintf("%s:%d", filename, a.line),
		})
	}
	for _, c := range raw.Concretes {
		m.Concretes = append(m.Concretes, &config.ConcreteDeclaration{
			Abstract: c.Abstract,
			Concrete: c.Type,
			Origin:   fmt.Sprintf("%s:%d", filename, c.line),
		})
	}
	for _, r := range raw.References {
		location := r.Location
		if location != "" && !filepath.IsAbs(location) {
			location = filepath.Join(filepath.Dir(filename), location)
		}
		m.References = append(m.References, &config.ReferenceDeclaration{
			Name:     r.Name,
			Location: location,
			Deferred: r.Deferred,
			Origin:   filename,
		})
	}
	return m, nil
}
