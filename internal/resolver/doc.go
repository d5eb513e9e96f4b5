// Package resolver is the resolution facade: it answers "which adapter
// implements role R for type T" by consulting a cache, the adapter registry,
// explicit and probed modules, and finally concrete-class resolution.
//
// A Session owns one registry, one probe and one write-once result cache.
// Terminal outcomes, found or not found, are cached under the requested
// (role, type) key and never change for the lifetime of the session.
// Configuration errors are returned to the caller and not cached.
package resolver
