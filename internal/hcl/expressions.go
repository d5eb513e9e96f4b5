// This file contains the logic for reading type identities and adapter
// options out of HCL expressions.

package hcl

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// typeExprToID reads a type identity from either a bare traversal
// (`stream.LineSource`) or a string literal ("stream.LineSource").
func typeExprToID(ctx context.Context, expr hcl.Expression) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if expr == nil {
		return "", fmt.Errorf("type is required")
	}

	if v, ok := expr.(*hclsyntax.ScopeTraversalExpr); ok {
		logger.Debug("Reading type identity from traversal.", "root", v.Traversal.RootName())
		return traversalToID(v.Traversal)
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() || !val.Type().Equals(cty.String) {
		return "", fmt.Errorf("type must be a string or a type name, got %s", val.Type().FriendlyName())
	}
	var s string
	if err := gocty.FromCtyValue(val, &s); err != nil {
		return "", fmt.Errorf("failed to read type: %w", err)
	}
	return s, nil
}

func traversalToID(traversal hcl.Traversal) (string, error) {
	parts := make([]string, 0, len(traversal))
	for _, step := range traversal {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, s.Name)
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		default:
			return "", fmt.Errorf("type name %q may only contain dotted identifiers", traversal.RootName())
		}
	}
	return strings.Join(parts, "."), nil
}

// optionsFromExpr evaluates an `options` object into a flat string map.
// Numbers and bools are converted to their string form; nested values are
// rejected.
func optionsFromExpr(ctx context.Context, expr hcl.Expression) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}

	converted, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil {
		return nil, fmt.Errorf("options must be a map of strings: %w", err)
	}

	var out map[string]string
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Decoded adapter options.", "count", len(out))
	return out, nil
}
