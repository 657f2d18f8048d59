// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on a specific backend. The service registers hooks at startup
// to receive events about graph mutations, event fanout, and HTTP requests.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, not by libraries, so the graph, fanout and
// gateway packages never import a metrics framework. [Prometheus] is the
// bundled implementation.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    prom := observability.NewPrometheus(prometheus.DefaultRegisterer)
//	    observability.SetGraphHooks(prom)
//	    observability.SetFanoutHooks(prom)
//	    observability.SetHTTPHooks(prom)
//	    // ... run the server
//	}
//
// Libraries call hooks to emit events:
//
//	start := time.Now()
//	// ... apply the mutation ...
//	observability.Graph().OnMutation(ctx, "node:add", true, time.Since(start), nil)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Graph Hooks
// =============================================================================

// GraphHooks receives events from the sync gateway.
type GraphHooks interface {
	// OnMutation records a mutation. applied is false for store no-ops;
	// err is non-nil when the mutation was rejected.
	OnMutation(ctx context.Context, mutationType string, applied bool, duration time.Duration, err error)

	// OnQuery records a read. kind is "all" or "subgraph".
	OnQuery(ctx context.Context, kind string, nodeCount int, duration time.Duration)

	// OnLayout records a layout run triggered by a bulk sync.
	OnLayout(ctx context.Context, nodeCount int, duration time.Duration)
}

// =============================================================================
// Fanout Hooks
// =============================================================================

// FanoutHooks receives events from the subscriber hub.
type FanoutHooks interface {
	// OnSubscribe records a new subscriber; total is the count afterwards.
	OnSubscribe(total int)

	// OnUnsubscribe records a removed subscriber. reason is "closed",
	// "send_failed" or "shutdown".
	OnUnsubscribe(total int, reason string)

	// OnBroadcast records one event delivered to delivered subscribers,
	// with dropped subscribers removed because their send failed.
	OnBroadcast(eventType string, delivered, dropped int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP server.
type HTTPHooks interface {
	// OnRequest records a served request. route is the matched route
	// pattern, not the raw path.
	OnRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopGraphHooks is a no-op implementation of GraphHooks.
type NoopGraphHooks struct{}

func (NoopGraphHooks) OnMutation(context.Context, string, bool, time.Duration, error) {}
func (NoopGraphHooks) OnQuery(context.Context, string, int, time.Duration)            {}
func (NoopGraphHooks) OnLayout(context.Context, int, time.Duration)                   {}

// NoopFanoutHooks is a no-op implementation of FanoutHooks.
type NoopFanoutHooks struct{}

func (NoopFanoutHooks) OnSubscribe(int)              {}
func (NoopFanoutHooks) OnUnsubscribe(int, string)    {}
func (NoopFanoutHooks) OnBroadcast(string, int, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	graphHooks  GraphHooks  = NoopGraphHooks{}
	fanoutHooks FanoutHooks = NoopFanoutHooks{}
	httpHooks   HTTPHooks   = NoopHTTPHooks{}
	hooksMu     sync.RWMutex
)

// SetGraphHooks registers custom graph hooks.
// This should be called once at application startup before serving traffic.
func SetGraphHooks(h GraphHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		graphHooks = h
	}
}

// SetFanoutHooks registers custom fanout hooks.
func SetFanoutHooks(h FanoutHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		fanoutHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Graph returns the registered graph hooks.
func Graph() GraphHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return graphHooks
}

// Fanout returns the registered fanout hooks.
func Fanout() FanoutHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return fanoutHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	graphHooks = NoopGraphHooks{}
	fanoutHooks = NoopFanoutHooks{}
	httpHooks = NoopHTTPHooks{}
}
