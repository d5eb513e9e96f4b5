// Package schema holds the gohcl decoding targets for module manifests.
package schema

import "github.com/hashicorp/hcl/v2"

// Module is the optional `module "<name>"` block naming the manifest's module.
type Module struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
}

// Adapter is an `adapter "<role>" "<adaptee>"` block. Type may be written as a
// quoted string or as a bare traversal such as `stream.LineSource`.
type Adapter struct {
	Role    string         `hcl:"role,label"`
	Adaptee string         `hcl:"adaptee,label"`
	Type    hcl.Expression `hcl:"type"`
	Options hcl.Expression `hcl:"options,optional"`
}

// Concrete is a `concrete "<abstract>"` block.
type Concrete struct {
	Abstract string         `hcl:"abstract,label"`
	Type     hcl.Expression `hcl:"type"`
}

// Reference is a `reference "<module>"` block naming another module.
type Reference struct {
	Name     string `hcl:"name,label"`
	Location string `hcl:"location,optional"`
	Deferred bool   `hcl:"deferred,optional"`
}

// Manifest is the top-level structure of a manifest file.
type Manifest struct {
	Modules    []*Module    `hcl:"module,block"`
	Adapters   []*Adapter   `hcl:"adapter,block"`
	Concretes  []*Concrete  `hcl:"concrete,block"`
	References []*Reference `hcl:"reference,block"`
}
