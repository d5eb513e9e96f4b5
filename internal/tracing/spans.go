package tracing

// Span attribute keys for resolution tracing.
const (
	AttrSessionID = "session.id"
	AttrRole      = "resolution.role"
	AttrAdaptee   = "resolution.adaptee"
	AttrState     = "resolution.state"
	AttrAdapter   = "resolution.adapter"
	AttrModule    = "resolution.module"
	AttrScanned   = "resolution.scanned_modules"
	AttrFallback  = "resolution.fallback"
	AttrConcrete  = "resolution.concrete"
)

// Span names.
const (
	SpanResolve = "resolver.Resolve"
	SpanScan    = "registry.ScanModule"
)
