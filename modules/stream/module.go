// Package stream writes property bags as one "key<separator>value" line per
// entry, in key order.
package stream

import (
	"context"
	_ "embed"
	"fmt"
	"io"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/hcl"
	"github.com/vk/rolebinder/internal/typeid"
	"github.com/vk/rolebinder/modules/props"
)

//go:embed manifest.hcl
var manifest []byte

// LineSourceID is the identity of LineSource.
var LineSourceID = typeid.MustParse("stream.LineSource")

// DefaultSeparator separates keys from values.
const DefaultSeparator = "="

// LineSource is the streaming source for property bags.
type LineSource struct {
	Separator string
}

// Configure accepts the "separator" option.
func (s *LineSource) Configure(options map[string]string) error {
	for k, v := range options {
		switch k {
		case "separator":
			if v == "" {
				return fmt.Errorf("separator cannot be empty")
			}
			s.Separator = v
		default:
			return fmt.Errorf("unknown option %q", k)
		}
	}
	return nil
}

// Stream writes value, which must be a props.Bag, to w.
func (s *LineSource) Stream(ctx context.Context, value any, w io.Writer) error {
	bag, ok := value.(props.Bag)
	if !ok {
		return fmt.Errorf("cannot stream %T: not a property bag", value)
	}
	sep := s.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	for _, k := range bag.Keys() {
		v, _ := bag.Get(k)
		if _, err := fmt.Fprintf(w, "%s%s%s\n", k, sep, v); err != nil {
			return fmt.Errorf("failed to write %q: %w", k, err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Property bag streamed.", "entries", bag.Len())
	return nil
}

// Module implements module.Static for this package.
type Module struct{}

func (m *Module) Name() string { return "stream" }

// Manifest decodes the embedded manifest.
func (m *Module) Manifest(ctx context.Context) (*config.Manifest, error) {
	return hcl.NewDecoder().Decode(ctx, "stream/manifest.hcl", manifest)
}

// InstallTypes registers LineSource.
func (m *Module) InstallTypes(c *typeid.Catalog) error {
	return typeid.Register[LineSource](c, LineSourceID)
}
