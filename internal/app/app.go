package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/fsutil"
	"github.com/vk/rolebinder/internal/hcl"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/resolver"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/tracing"
	"github.com/vk/rolebinder/internal/typeid"
	"github.com/vk/rolebinder/internal/yamlmanifest"
)

// manifestExtensions are the file suffixes recognized under ModulesPath.
var manifestExtensions = []string{".module.hcl", ".module.yaml", ".module.yml"}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger     *slog.Logger
	ctx        context.Context
	config     *Config
	session    *resolver.Session
	probe      module.Probe
	tracer     *tracing.Provider
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, writing to logW, and
// session. extra modules are compiled in next to the core modules.
func NewApp(logW io.Writer, cfg *Config, extra ...module.Static) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to configure tracing: %w", err)
	}

	static := module.NewStaticLoader()
	for _, m := range append(append([]module.Static(nil), coreModules...), extra...) {
		if err := static.Add(m); err != nil {
			return nil, err
		}
	}
	loader := module.ChainLoader{
		static,
		module.NewFileLoader(hcl.NewDecoder(), yamlmanifest.NewDecoder()),
	}

	refs, err := collectReferences(cfg, static.Names())
	if err != nil {
		return nil, err
	}

	var probe module.Probe
	if !cfg.DisableProbe {
		probe = module.DirectoryProbe{Dir: cfg.ProbeDir, Patterns: cfg.ProbePatterns}
	}

	session := resolver.NewSession(loader,
		resolver.WithReferences(refs...),
		resolver.WithProbe(probe),
		resolver.WithTracer(tp.Tracer()),
	)
	logger.Debug("Resolution session created.", "session", session.ID(), "references", len(refs))

	return &App{
		logger:  logger,
		ctx:     ctx,
		config:  cfg,
		session: session,
		probe:   probe,
		tracer:  tp,
	}, nil
}

// collectReferences builds the explicit references: compiled-in modules,
// configured manifest files, then manifests found under ModulesPath.
func collectReferences(cfg *Config, staticNames []string) ([]module.Reference, error) {
	var refs []module.Reference
	for _, name := range staticNames {
		refs = append(refs, module.MustReference(name, "", deferredCoreModules[name]))
	}

	for _, path := range cfg.References {
		ref, err := fileReference(path, false)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if cfg.ModulesPath != "" {
		files, err := fsutil.FindFilesByExtension(cfg.ModulesPath, manifestExtensions...)
		if err != nil {
			return nil, fmt.Errorf("failed to walk modules path %s: %w", cfg.ModulesPath, err)
		}
		for _, path := range files {
			ref, err := fileReference(path, true)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func fileReference(path string, deferred bool) (module.Reference, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return module.Reference{}, err
	}
	name := fsutil.TrimCompoundExt(filepath.Base(abs), append(manifestExtensions, ".hcl", ".yaml", ".yml")...)
	return module.NewReference(name, abs, deferred)
}

// Context returns the application context carrying its logger.
func (a *App) Context() context.Context { return a.ctx }

// Session returns the application's resolution session.
func (a *App) Session() *resolver.Session { return a.session }

// Start scans every eager module reference. Load failures are logged;
// configuration errors abort startup.
func (a *App) Start() error {
	err := a.session.Preload(a.ctx)
	if err == nil {
		a.logger.Debug("Eager modules scanned.", "definitions", a.session.Registry().Len())
		return nil
	}
	if errors.Is(err, registry.ErrConfiguration) {
		return fmt.Errorf("failed to load modules: %w", err)
	}
	a.logger.Warn("Some modules failed to load.", "error", err)
	return nil
}

// Resolve resolves role and adaptee, optionally falling back to a null
// substitute.
func (a *App) Resolve(ctx context.Context, rawRole, rawType string, fallback bool) (resolver.Resolution, error) {
	r, err := role.Parse(rawRole)
	if err != nil {
		return resolver.Resolution{}, err
	}
	adaptee, err := typeid.Parse(rawType)
	if err != nil {
		return resolver.Resolution{}, err
	}
	if fallback {
		return a.session.ResolveWithFallback(ctx, r, adaptee)
	}
	return a.session.Resolve(ctx, r, adaptee)
}

// ScanAll scans every known module, including deferred ones and probe
// candidates, so that listings are complete.
func (a *App) ScanAll() error {
	var errs []error
	scan := func(ref module.Reference) {
		if _, err := a.session.Registry().ScanModule(a.ctx, ref); errors.Is(err, registry.ErrConfiguration) {
			errs = append(errs, err)
		}
	}
	drain := func() {
		for {
			pending := a.session.Registry().PendingReferences()
			if len(pending) == 0 {
				return
			}
			for _, ref := range pending {
				scan(ref)
			}
		}
	}
	drain()
	for ref := range a.Candidates() {
		scan(ref)
	}
	drain()
	return errors.Join(errs...)
}

// Definitions returns all known adapter definitions.
func (a *App) Definitions() []*registry.Definition {
	return a.session.Registry().Definitions()
}

// Candidates enumerates the probe's candidate modules.
func (a *App) Candidates() iter.Seq[module.Reference] {
	return module.SafeEnumerate(a.ctx, a.probe)
}

// Close releases the server and the tracer.
func (a *App) Close() error {
	err := a.closeServer()
	if terr := a.tracer.Shutdown(a.ctx); err == nil {
		err = terr
	}
	return err
}
