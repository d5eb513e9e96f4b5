// Package registry holds adapter definitions keyed by (role, adaptee type)
// and turns loaded modules into definitions.
//
// Definitions accumulate in insertion order and the first one inserted for a
// key wins. Scanning a module is idempotent: each module identity is loaded
// and scanned at most once per registry, even when many goroutines ask for it
// at the same time. The registry only grows during normal operation.
package registry
