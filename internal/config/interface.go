package config

import "context"

// Decoder turns the raw bytes of one manifest file into the agnostic model.
type Decoder interface {
	// Decode parses src. filename is used for diagnostics and to resolve
	// relative reference locations.
	Decode(ctx context.Context, filename string, src []byte) (*Manifest, error)

	// Extensions lists the file extensions (including the dot) this decoder
	// accepts, e.g. ".hcl".
	Extensions() []string
}
