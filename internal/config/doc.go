// Package config defines the format-agnostic manifest model that modules use
// to declare adapters, concrete-class bindings and references to further
// modules, along with the Decoder interface implemented per encoding.
//
// The `config.Manifest` is the only shape the registry understands. Concrete
// decoders, such as for HCL or YAML, live in separate packages.
package config
