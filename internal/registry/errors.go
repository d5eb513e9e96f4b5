package registry

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by every ConfigError.
var ErrConfiguration = errors.New("invalid module configuration")

// ConfigError reports malformed declarations in a module's metadata.
type ConfigError struct {
	Module string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module %q has invalid configuration: %v", e.Module, e.Err)
}

// Unwrap exposes both ErrConfiguration and the cause.
func (e *ConfigError) Unwrap() []error { return []error{ErrConfiguration, e.Err} }

// ErrPreviouslyFailed is wrapped by the error ScanModule returns to callers
// that did not run the failed scan themselves.
var ErrPreviouslyFailed = errors.New("module failed in an earlier scan")

// RecordedError carries the recorded failure of a module to later callers.
// It matches both ErrPreviouslyFailed and the original error.
type RecordedError struct {
	Module string
	Err    error
}

func (e *RecordedError) Error() string {
	return fmt.Sprintf("module %q failed earlier: %v", e.Module, e.Err)
}

func (e *RecordedError) Unwrap() []error { return []error{ErrPreviouslyFailed, e.Err} }

// IsFreshConfigError reports whether err is a configuration error found by
// the scan that returned it, rather than one recorded by an earlier scan.
func IsFreshConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration) && !errors.Is(err, ErrPreviouslyFailed)
}
