// Package hcl provides the HCL implementation of config.Decoder. It parses
// module manifests with hclparse, decodes them into the schema structs with
// gohcl, and translates the result into the format-agnostic config.Manifest.
package hcl
