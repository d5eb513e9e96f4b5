package resolver

import (
	"context"

	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/role"
	"github.com/vk/rolebinder/internal/tracing"
	"github.com/vk/rolebinder/internal/typeid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// attempt carries the progress of one uncached resolution.
type attempt struct {
	res     Resolution
	visited map[string]struct{}
	scanned int
}

// resolve runs the uncached pipeline: exact lookup, explicit references,
// probe candidates, then concrete-class resolution.
func (s *Session) resolve(ctx context.Context, r role.Role, adaptee typeid.ID) (Resolution, error) {
	ctx, span := s.tracer.Start(ctx, tracing.SpanResolve, trace.WithAttributes(
		attribute.String(tracing.AttrSessionID, s.ID()),
		attribute.String(tracing.AttrRole, string(r)),
		attribute.String(tracing.AttrAdaptee, string(adaptee)),
	))
	defer span.End()
	ctx, logger := ctxlog.With(ctx, "role", r, "adaptee", adaptee)

	a := &attempt{
		res:     Resolution{Role: r, Adaptee: adaptee, State: StateUnresolved, catalog: s.catalog},
		visited: make(map[string]struct{}),
	}

	found, err := s.search(ctx, a)
	span.SetAttributes(attribute.Int(tracing.AttrScanned, a.scanned))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Resolution aborted by a configuration error.", "error", err)
		a.res.State = StateUnresolved
		a.res.Definition = nil
		return a.res, err
	}
	if !found {
		s.resolveConcrete(ctx, a)
	}
	if !a.res.Found() {
		a.res.State = StateNotFound
	}

	span.SetAttributes(attribute.String(tracing.AttrState, a.res.State.String()))
	if a.res.Found() {
		span.SetAttributes(
			attribute.String(tracing.AttrAdapter, string(a.res.Definition.Adapter)),
			attribute.String(tracing.AttrModule, a.res.Definition.Module.Name()),
		)
		logger.Debug("Adapter resolved.", "adapter", a.res.Definition.Adapter, "module", a.res.Definition.Module.Name(), "scanned", a.scanned)
	} else {
		logger.Debug("No adapter found.", "scanned", a.scanned, "failures", len(a.res.Failures))
	}
	return a.res, nil
}

// search looks the key up and, on a miss, scans modules until it is found.
func (s *Session) search(ctx context.Context, a *attempt) (bool, error) {
	if s.lookup(a, a.res.Adaptee) {
		return true, nil
	}
	a.res.State = StateProbing

	found, err := s.drainReferences(ctx, a)
	if found || err != nil {
		return found, err
	}

	for ref := range module.SafeEnumerate(ctx, s.Probe()) {
		found, err := s.visit(ctx, a, ref)
		if found || err != nil {
			return found, err
		}
		// A probed module may have declared references of its own.
		found, err = s.drainReferences(ctx, a)
		if found || err != nil {
			return found, err
		}
	}
	return false, nil
}

// drainReferences visits explicit references in declaration order until no
// unvisited ones remain, picking up references recorded while scanning.
func (s *Session) drainReferences(ctx context.Context, a *attempt) (bool, error) {
	for {
		progressed := false
		for _, ref := range s.registry.References() {
			if _, ok := a.visited[ref.Name()]; ok {
				continue
			}
			progressed = true
			found, err := s.visit(ctx, a, ref)
			if found || err != nil {
				return found, err
			}
		}
		if !progressed {
			return false, nil
		}
	}
}

// visit scans ref unless already scanned and retries the lookup. Modules
// scanned by anyone are skipped without a scan, but the lookup still runs in
// case their definitions arrived after this attempt started.
func (s *Session) visit(ctx context.Context, a *attempt, ref module.Reference) (bool, error) {
	if _, ok := a.visited[ref.Name()]; ok {
		return false, nil
	}
	a.visited[ref.Name()] = struct{}{}

	if s.registry.Status(ref.Name()) != registry.Scanned {
		a.scanned++
		if _, err := s.registry.ScanModule(ctx, ref); err != nil {
			if registry.IsFreshConfigError(err) {
				return false, err
			}
			a.res.Failures = append(a.res.Failures, err)
			ctxlog.FromContext(ctx).Debug("Skipping module that failed to scan.", "module", ref.Name(), "error", err)
			return false, nil
		}
	}
	return s.lookup(a, a.res.Adaptee), nil
}

// resolveConcrete retries the lookup once with the concrete implementation
// of an abstract adaptee.
func (s *Session) resolveConcrete(ctx context.Context, a *attempt) {
	if !s.catalog.IsAbstract(a.res.Adaptee) {
		return
	}
	b, err := s.concrete.ResolveConcreteType(ctx, a.res.Adaptee)
	if err != nil {
		return
	}
	if s.lookup(a, b.Concrete) {
		a.res.Via = &b
		trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrConcrete, string(b.Concrete)))
	}
}

func (s *Session) lookup(a *attempt, adaptee typeid.ID) bool {
	def, ok := s.registry.Lookup(a.res.Role, adaptee)
	if !ok {
		return false
	}
	a.res.Definition = def
	a.res.State = StateResolved
	return true
}
