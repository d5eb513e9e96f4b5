// Package cli is responsible for parsing command-line arguments, loading the
// layered configuration (flags, environment, config file) and handling
// process-level concerns like exit codes. Each invocation builds its own
// command tree and viper instance so that runs do not share state.
package cli
