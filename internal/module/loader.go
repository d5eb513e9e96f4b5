package module

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/typeid"
)

var (
	// ErrLoad is wrapped by every LoadError.
	ErrLoad = errors.New("module load failed")
	// ErrUnknownModule indicates that a loader does not handle a reference.
	ErrUnknownModule = errors.New("unknown module")
)

// LoadError reports that a referenced module could not be loaded.
type LoadError struct {
	Ref Reference
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module %q: %v", e.Ref.Name(), e.Err)
}

// Unwrap exposes both ErrLoad and the cause to errors.Is and errors.As.
func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// Loaded is a module after loading. Its manifest is the declarative metadata
// the registry scans.
type Loaded interface {
	Reference() Reference
	Manifest(ctx context.Context) (*config.Manifest, error)
}

// TypeInstaller is implemented by loaded modules that contribute compiled Go
// types. The registry calls it once, before reading the manifest.
type TypeInstaller interface {
	InstallTypes(catalog *typeid.Catalog) error
}

// Loader loads modules synchronously.
type Loader interface {
	Load(ctx context.Context, ref Reference) (Loaded, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, ref Reference) (Loaded, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, ref Reference) (Loaded, error) { return f(ctx, ref) }

// manifestModule is a loaded module whose manifest is already decoded.
type manifestModule struct {
	ref      Reference
	manifest *config.Manifest
}

func (m *manifestModule) Reference() Reference { return m.ref }

func (m *manifestModule) Manifest(context.Context) (*config.Manifest, error) { return m.manifest, nil }

// NewLoaded wraps an already decoded manifest as a loaded module.
func NewLoaded(ref Reference, manifest *config.Manifest) Loaded {
	return &manifestModule{ref: ref, manifest: manifest}
}

// FileLoader loads modules whose location is a manifest file. The decoder is
// selected by file extension.
type FileLoader struct {
	decoders map[string]config.Decoder
}

// NewFileLoader creates a loader for the given decoders. Later decoders win
// when two claim the same extension.
func NewFileLoader(decoders ...config.Decoder) *FileLoader {
	l := &FileLoader{decoders: make(map[string]config.Decoder)}
	for _, d := range decoders {
		for _, ext := range d.Extensions() {
			l.decoders[strings.ToLower(ext)] = d
		}
	}
	return l
}

// Extensions lists the supported extensions, sorted.
func (l *FileLoader) Extensions() []string {
	exts := make([]string, 0, len(l.decoders))
	for ext := range l.decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load implements Loader. A reference without a location is not handled.
func (l *FileLoader) Load(ctx context.Context, ref Reference) (Loaded, error) {
	if ref.Location() == "" {
		return nil, &LoadError{Ref: ref, Err: ErrUnknownModule}
	}
	logger := ctxlog.FromContext(ctx)

	ext := strings.ToLower(filepath.Ext(ref.Location()))
	decoder, ok := l.decoders[ext]
	if !ok {
		return nil, &LoadError{Ref: ref, Err: fmt.Errorf("no manifest decoder for extension %q", ext)}
	}

	src, err := os.ReadFile(ref.Location())
	if err != nil {
		return nil, &LoadError{Ref: ref, Err: err}
	}

	manifest, err := decoder.Decode(ctx, ref.Location(), src)
	if err != nil {
		return nil, &LoadError{Ref: ref, Err: err}
	}
	if manifest.Module != "" && manifest.Module != ref.Name() {
		logger.Warn("Manifest declares a different module name; the reference name is used.",
			"reference", ref.Name(), "declared", manifest.Module, "file", ref.Location())
	}

	logger.Debug("Module manifest loaded from file.", "module", ref.Name(), "file", ref.Location())
	return NewLoaded(ref, manifest), nil
}

// Static is an in-process module compiled into the binary.
type Static interface {
	Name() string
	Manifest(ctx context.Context) (*config.Manifest, error)
	InstallTypes(catalog *typeid.Catalog) error
}

// StaticLoader loads in-process modules by name.
type StaticLoader struct {
	mu      sync.RWMutex
	modules map[string]Static
	order   []string
}

// NewStaticLoader creates a loader holding mods. Duplicate names panic, as
// they are a programming error.
func NewStaticLoader(mods ...Static) *StaticLoader {
	l := &StaticLoader{modules: make(map[string]Static)}
	for _, m := range mods {
		if err := l.Add(m); err != nil {
			panic(err)
		}
	}
	return l
}

// Add registers a module.
func (l *StaticLoader) Add(m Static) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := m.Name()
	if _, exists := l.modules[name]; exists {
		return fmt.Errorf("static module %q already registered", name)
	}
	l.modules[name] = m
	l.order = append(l.order, name)
	return nil
}

// Names lists the registered modules in registration order.
func (l *StaticLoader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Load implements Loader. References with a location belong to other loaders.
func (l *StaticLoader) Load(ctx context.Context, ref Reference) (Loaded, error) {
	l.mu.RLock()
	m, ok := l.modules[ref.Name()]
	l.mu.RUnlock()
	if !ok || ref.Location() != "" {
		return nil, &LoadError{Ref: ref, Err: ErrUnknownModule}
	}
	ctxlog.FromContext(ctx).Debug("Static module loaded.", "module", ref.Name())
	return &staticModule{ref: ref, mod: m}, nil
}

type staticModule struct {
	ref Reference
	mod Static
}

func (s *staticModule) Reference() Reference { return s.ref }

func (s *staticModule) Manifest(ctx context.Context) (*config.Manifest, error) {
	return s.mod.Manifest(ctx)
}

func (s *staticModule) InstallTypes(catalog *typeid.Catalog) error {
	return s.mod.InstallTypes(catalog)
}

// ChainLoader tries each loader in order until one handles the reference.
type ChainLoader []Loader

// Load implements Loader.
func (c ChainLoader) Load(ctx context.Context, ref Reference) (Loaded, error) {
	for _, l := range c {
		loaded, err := l.Load(ctx, ref)
		if errors.Is(err, ErrUnknownModule) {
			continue
		}
		return loaded, err
	}
	return nil, &LoadError{Ref: ref, Err: ErrUnknownModule}
}
