// Package module describes loadable modules from the outside: the Reference
// that names a module, the Probe that discovers candidate modules in the
// environment, and the Loader that turns a reference into a loaded module
// whose declarative metadata can be read.
//
// Modules are loaded, never unloaded. Nothing in this package caches which
// references were already seen; that bookkeeping belongs to the registry.
package module
