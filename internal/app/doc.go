// Package app wires the resolution engine into a runnable application: it
// builds the logger, the module loaders and the resolution session from a
// Config, and exposes the operations used by the command line and the HTTP
// server, decoupled from any specific entrypoint.
package app
