// manifest_hcl.go: HCL manifest decoding
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclManifest mirrors Manifest for HCL files:
//
//	kind        = "provider"
//	constructor = "sql"
//
//	options {
//	  driver = "sqlite"
//	  dsn    = "file:pieces.db"
//	}
type hclManifest struct {
	Name        string      `hcl:"name,optional"`
	Kind        string      `hcl:"kind,optional"`
	Constructor string      `hcl:"constructor,optional"`
	Options     *hclOptions `hcl:"options,block"`
}

type hclOptions struct {
	Body hcl.Body `hcl:",remain"`
}

func decodeHCLManifest(filename string, data []byte, m *Manifest) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL manifest %s: %w", filename, diags)
	}

	var root hclManifest
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL manifest %s: %w", filename, diags)
	}
	m.Name = root.Name
	m.Kind = Kind(root.Kind)
	m.Constructor = root.Constructor

	if root.Options == nil {
		return nil
	}
	attrs, diags := root.Options.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("failed to read options in %s: %w", filename, diags)
	}
	m.Options = make(Options, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("option %q in %s: %w", name, filename, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return fmt.Errorf("option %q in %s: %w", name, filename, err)
		}
		m.Options[name] = native
	}
	return nil
}

// ctyToNative converts a cty value into plain Go values. Whole numbers come
// back as int so they satisfy Options.Int without conversion.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			var i int
			if err := gocty.FromCtyValue(v, &i); err == nil {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
