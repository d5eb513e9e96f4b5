package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/vk/rolebinder/internal/concrete"
	"github.com/vk/rolebinder/internal/config"
	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/typeid"
)

// ScanStatus is the scan state of one module identity.
type ScanStatus int32

const (
	NotScanned ScanStatus = iota
	Scanning
	Scanned
	Failed
)

func (s ScanStatus) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Scanned:
		return "scanned"
	case Failed:
		return "failed"
	default:
		return "not_scanned"
	}
}

// scanEntry guards the single load-and-scan of one module.
type scanEntry struct {
	once   sync.Once
	status atomic.Int32
	defs   []*Definition
	err    error
}

// ScanModule loads ref if needed, reads its metadata and inserts the
// resulting definitions. Only the first call for a module name does any
// work; later and concurrent calls wait for it and then return no new
// definitions or, if the scan failed, a *RecordedError wrapping the recorded
// error. The definitions are in the registry before any caller returns.
func (r *Registry) ScanModule(ctx context.Context, ref module.Reference) ([]*Definition, error) {
	v, _ := r.scans.LoadOrStore(ref.Name(), &scanEntry{})
	entry := v.(*scanEntry)

	first := false
	entry.once.Do(func() {
		first = true
		entry.status.Store(int32(Scanning))
		entry.defs, entry.err = r.scan(ctx, ref)
		if entry.err != nil {
			entry.status.Store(int32(Failed))
		} else {
			entry.status.Store(int32(Scanned))
		}
	})

	if entry.err != nil {
		if first {
			return nil, entry.err
		}
		return nil, &RecordedError{Module: ref.Name(), Err: entry.err}
	}
	if !first {
		return nil, nil
	}
	return entry.defs, nil
}

// Status reports the scan state of the named module.
func (r *Registry) Status(name string) ScanStatus {
	v, ok := r.scans.Load(name)
	if !ok {
		return NotScanned
	}
	return ScanStatus(v.(*scanEntry).status.Load())
}

// Failures returns the recorded error of every module whose scan failed.
func (r *Registry) Failures() map[string]error {
	failures := make(map[string]error)
	r.scans.Range(func(k, v any) bool {
		entry := v.(*scanEntry)
		if ScanStatus(entry.status.Load()) == Failed {
			failures[k.(string)] = entry.err
		}
		return true
	})
	return failures
}

func (r *Registry) scan(ctx context.Context, ref module.Reference) ([]*Definition, error) {
	ctx, logger := ctxlog.With(ctx, "module", ref.Name())
	logger.Debug("Scanning module.", "location", ref.Location(), "deferred", ref.Deferred())

	manifest, err := r.load(ctx, ref)
	if err != nil {
		logger.Warn("Module could not be loaded.", "error", err)
		return nil, err
	}

	defs, bindings, refs, err := r.translate(ref, manifest)
	if err != nil {
		logger.Error("Module metadata is invalid.", "error", err)
		return nil, err
	}

	if len(bindings) > 0 {
		if r.bindings == nil {
			logger.Warn("Concrete declarations ignored, no binding sink configured.", "concretes", len(bindings))
		} else {
			decls := make([]concrete.Declaration, 0, len(bindings))
			for _, b := range bindings {
				decls = append(decls, concrete.Declaration{Abstract: typeid.ID(b.Abstract), Concrete: typeid.ID(b.Concrete), Origin: b.Origin})
			}
			if err := r.bindings.BindAll(ctx, decls); err != nil {
				logger.Error("Concrete declarations rejected.", "error", err)
				return nil, &ConfigError{Module: ref.Name(), Err: err}
			}
		}
	}
	for _, nested := range refs {
		if r.AddReference(nested) {
			logger.Debug("Module reference recorded.", "reference", nested.Name(), "deferred", nested.Deferred())
		}
	}
	for _, def := range defs {
		r.Insert(def)
	}

	logger.Info("Module scanned.", "definitions", len(defs), "concretes", len(bindings), "references", len(refs))
	return defs, nil
}

// load runs the loader and the module's type installer and returns its
// manifest. Every failure here is a *module.LoadError.
func (r *Registry) load(ctx context.Context, ref module.Reference) (*config.Manifest, error) {
	if r.loader == nil {
		return nil, &module.LoadError{Ref: ref, Err: errors.New("no module loader configured")}
	}
	loaded, err := r.loader.Load(ctx, ref)
	if err != nil {
		var loadErr *module.LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &module.LoadError{Ref: ref, Err: err}
	}
	if installer, ok := loaded.(module.TypeInstaller); ok {
		if err := installer.InstallTypes(r.catalog); err != nil {
			return nil, &module.LoadError{Ref: ref, Err: fmt.Errorf("failed to install types: %w", err)}
		}
	}
	manifest, err := loaded.Manifest(ctx)
	if err != nil {
		return nil, &module.LoadError{Ref: ref, Err: fmt.Errorf("failed to read metadata: %w", err)}
	}
	return manifest, nil
}

// translate validates every declaration of manifest. Nothing is applied
// unless the whole manifest is valid.
func (r *Registry) translate(ref module.Reference, manifest *config.Manifest) ([]*Definition, []*config.ConcreteDeclaration, []module.Reference, error) {
	if manifest == nil {
		return nil, nil, nil, nil
	}
	if err := manifest.Validate(); err != nil {
		return nil, nil, nil, &ConfigError{Module: ref.Name(), Err: err}
	}

	var errs []error
	defs := make([]*Definition, 0, len(manifest.Adapters))
	for _, decl := range manifest.Adapters {
		def, err := r.definition(ref, decl)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", decl.Origin, err))
			continue
		}
		defs = append(defs, def)
	}

	for _, decl := range manifest.Concretes {
		if _, err := typeid.Parse(decl.Abstract); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", decl.Origin, err))
		}
		if _, err := typeid.Parse(decl.Concrete); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", decl.Origin, err))
		}
	}

	refs := make([]module.Reference, 0, len(manifest.References))
	for _, decl := range manifest.References {
		nested, err := module.NewReference(decl.Name, decl.Location, decl.Deferred)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", decl.Origin, err))
			continue
		}
		refs = append(refs, nested)
	}

	if len(errs) > 0 {
		return nil, nil, nil, &ConfigError{Module: ref.Name(), Err: errors.Join(errs...)}
	}
	return defs, manifest.Concretes, refs, nil
}

func (r *Registry) definition(ref module.Reference, decl *config.AdapterDeclaration) (*Definition, error) {
	rl, err := role.Parse(decl.Role)
	if err != nil {
		return nil, err
	}
	adaptee, err := typeid.Parse(decl.Adaptee)
	if err != nil {
		return nil, err
	}
	adapter, err := typeid.Parse(decl.Adapter)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Role:    rl,
		Adaptee: adaptee,
		Adapter: adapter,
		Module:  ref,
		Options: maps.Clone(decl.Options),
		Origin:  decl.Origin,
	}
	entry, ok := r.catalog.Lookup(adapter)
	if !ok {
		return def, nil
	}
	var adapteeType reflect.Type
	if target, ok := r.catalog.Lookup(adaptee); ok {
		adapteeType = target.Type
	}
	if err := r.contracts.Check(rl, entry.Type, adapteeType); err != nil {
		return nil, err
	}
	def.AdapterType = entry.Type
	return def, nil
}
