// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries emit events through the registered hooks; main decides what
// receives them. Nothing in the analysis packages depends on a metrics
// framework, and the default hooks do nothing. The prometheus subpackage
// provides the implementation used by `stackaudit serve`.
//
// Four event categories exist:
//   - [PipelineHooks]: stage timings and run completion
//   - [AuditHooks]: per-package decisions and vulnerability findings
//   - [CacheHooks]: cache hits, misses and writes by key type
//   - [HTTPHooks]: outgoing registry and API requests
//
// Register hooks at application startup:
//
//	hooks := prometheus.New()
//	hooks.Register()
//
// Libraries call hooks to emit events:
//
//	observability.Pipeline().OnStageStart(ctx, "resolve")
//	// ... resolve ...
//	observability.Pipeline().OnStageComplete(ctx, "resolve", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// PipelineHooks receives events from the analysis pipeline.
type PipelineHooks interface {
	// Stage events (resolve, scan, enrich, approve, report, persist, ...)
	OnStageStart(ctx context.Context, stage string)
	OnStageComplete(ctx context.Context, stage string, duration time.Duration, err error)

	// OnRunComplete is called once per analysis run.
	OnRunComplete(ctx context.Context, packages, vulnerabilities int, duration time.Duration, err error)
}

// AuditHooks receives the outcome of a run package by package.
type AuditHooks interface {
	// OnDecision records the final status of one package and the reason
	// given for it ("" when approved).
	OnDecision(ctx context.Context, status, reason string)

	// OnVulnerability records one finding by normalized severity.
	OnVulnerability(ctx context.Context, severity string)
}

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss (including expired and corrupt entries).
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)

	// OnCacheError records a backend failure or an undecodable entry.
	OnCacheError(ctx context.Context, keyType string, err error)
}

// HTTPHooks receives events from registry and API clients.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records a request that failed before a response (network
	// failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnStageStart(context.Context, string)                          {}
func (NoopPipelineHooks) OnStageComplete(context.Context, string, time.Duration, error) {}
func (NoopPipelineHooks) OnRunComplete(context.Context, int, int, time.Duration, error) {}

// NoopAuditHooks is a no-op implementation of AuditHooks.
type NoopAuditHooks struct{}

func (NoopAuditHooks) OnDecision(context.Context, string, string) {}
func (NoopAuditHooks) OnVulnerability(context.Context, string)    {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)          {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)         {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int)     {}
func (NoopCacheHooks) OnCacheError(context.Context, string, error) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Registry
// =============================================================================

type registry struct {
	mu       sync.RWMutex
	pipeline PipelineHooks
	audit    AuditHooks
	cache    CacheHooks
	http     HTTPHooks
}

var global = newRegistry()

func newRegistry() *registry {
	return &registry{
		pipeline: NoopPipelineHooks{},
		audit:    NoopAuditHooks{},
		cache:    NoopCacheHooks{},
		http:     NoopHTTPHooks{},
	}
}

// set stores h in *slot unless h is nil.
func set[T any](slot *T, h T, isNil bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !isNil {
		*slot = h
	}
}

func get[T any](slot *T) T {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return *slot
}

// SetPipelineHooks registers pipeline hooks. Call it once at startup; nil
// is ignored.
func SetPipelineHooks(h PipelineHooks) { set(&global.pipeline, h, h == nil) }

// SetAuditHooks registers audit hooks. Call it once at startup; nil is
// ignored.
func SetAuditHooks(h AuditHooks) { set(&global.audit, h, h == nil) }

// SetCacheHooks registers cache hooks. Call it once at startup; nil is
// ignored.
func SetCacheHooks(h CacheHooks) { set(&global.cache, h, h == nil) }

// SetHTTPHooks registers HTTP client hooks. Call it once at startup; nil
// is ignored.
func SetHTTPHooks(h HTTPHooks) { set(&global.http, h, h == nil) }

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks { return get(&global.pipeline) }

// Audit returns the registered audit hooks.
func Audit() AuditHooks { return get(&global.audit) }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return get(&global.cache) }

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks { return get(&global.http) }

// Reset restores every hook to its no-op default. Used by tests.
func Reset() {
	fresh := newRegistry()
	global.mu.Lock()
	defer global.mu.Unlock()
	global.pipeline = fresh.pipeline
	global.audit = fresh.audit
	global.cache = fresh.cache
	global.http = fresh.http
}
