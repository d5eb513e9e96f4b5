package module

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/fsutil"
)

// DefaultPatterns are the file name patterns DirectoryProbe matches when none
// are configured.
var DefaultPatterns = []string{"*.module.hcl", "*.module.yaml", "*.module.yml"}

// moduleSuffixes are stripped from file names to derive module names. The
// longest match wins.
var moduleSuffixes = []string{".module.hcl", ".module.yaml", ".module.yml", ".hcl", ".yaml", ".yml"}

// Probe discovers candidate modules. Each call returns a fresh, finite
// sequence. A probe must not remember what it returned before.
type Probe interface {
	EnumerateCandidateModules(ctx context.Context) iter.Seq[Reference]
}

// DirectoryProbe lists manifest files directly inside Dir.
type DirectoryProbe struct {
	// Dir defaults to the directory of the running executable.
	Dir string
	// Patterns default to DefaultPatterns.
	Patterns []string
	// Deferred marks every discovered reference as deferred.
	Deferred bool
}

// EnumerateCandidateModules implements Probe. Environment errors produce an
// empty sequence.
func (p DirectoryProbe) EnumerateCandidateModules(ctx context.Context) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		logger := ctxlog.FromContext(ctx)

		dir := p.Dir
		if dir == "" {
			exe, err := os.Executable()
			if err != nil {
				logger.Debug("Directory probe could not locate the executable.", "error", err)
				return
			}
			dir = filepath.Dir(exe)
		}
		patterns := p.Patterns
		if len(patterns) == 0 {
			patterns = DefaultPatterns
		}

		files, err := fsutil.MatchFiles(dir, patterns)
		if err != nil {
			logger.Debug("Directory probe found nothing.", "dir", dir, "error", err)
			return
		}
		for _, file := range files {
			name := fsutil.TrimCompoundExt(filepath.Base(file), moduleSuffixes...)
			ref, err := NewReference(name, file, p.Deferred)
			if err != nil {
				logger.Debug("Directory probe skipped a file.", "file", file, "error", err)
				continue
			}
			if !yield(ref) {
				return
			}
		}
	}
}

// ProbeFunc adapts a function to the Probe interface. An error is treated as
// an empty candidate list.
type ProbeFunc func(ctx context.Context) ([]Reference, error)

// EnumerateCandidateModules implements Probe.
func (f ProbeFunc) EnumerateCandidateModules(ctx context.Context) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		refs, err := f(ctx)
		if err != nil {
			ctxlog.FromContext(ctx).Debug("Probe failed, treating as no candidates.", "error", err)
			return
		}
		for _, ref := range refs {
			if !yield(ref) {
				return
			}
		}
	}
}

// StaticProbe always yields the same references in order.
type StaticProbe []Reference

// EnumerateCandidateModules implements Probe.
func (s StaticProbe) EnumerateCandidateModules(context.Context) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		for _, ref := range s {
			if !yield(ref) {
				return
			}
		}
	}
}

// SafeEnumerate returns the candidates of p with probe faults contained: a
// panic raised by the probe ends the sequence instead of reaching the caller.
// Panics raised by the consumer's loop body propagate unchanged. A nil probe
// yields nothing.
func SafeEnumerate(ctx context.Context, p Probe) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		if p == nil {
			return
		}
		inBody := false
		stopped := false
		defer func() {
			if inBody {
				return
			}
			if r := recover(); r != nil {
				ctxlog.FromContext(ctx).Debug("Probe panicked, treating as no more candidates.", "panic", r)
			}
		}()

		seq := p.EnumerateCandidateModules(ctx)
		if seq == nil {
			return
		}
		seq(func(ref Reference) bool {
			if stopped || ref.IsZero() {
				return !stopped
			}
			inBody = true
			more := yield(ref)
			inBody = false
			stopped = !more
			return more
		})
	}
}
