// Package metrics provides an observability framework for the worker's Prometheus metrics.
//
// # Design Philosophy
//
// This package implements the Null Object pattern to enable metrics collection
// without requiring explicit nil checks throughout the codebase. By default,
// all components use NoopRecorder which implements the Recorder interface with
// no-op methods that inline to nothing at compile time.
//
// # Architecture
//
// The metrics system has three components:
//
//  1. Recorder interface - Defines all metrics operations
//  2. NoopRecorder - Default implementation that does nothing (zero overhead)
//  3. Real implementation - PrometheusRecorder (prometheus_recorder.go)
//
// # Usage Pattern
//
// Components receive a Recorder through dependency injection:
//
//	type Builder struct {
//	    recorder metrics.Recorder
//	}
//
//	func NewBuilder() *Builder {
//	    return &Builder{
//	        recorder: metrics.NoopRecorder{}, // Default: no metrics
//	    }
//	}
//
// # Activation
//
// To enable metrics, swap NoopRecorder for a real implementation:
//
//	// When Prometheus is configured
//	recorder := metrics.NewPrometheusRecorder(registry)
//	u := updater.New(dataDir, store, recorder)
//
// This approach allows:
//   - Zero overhead when metrics are disabled (noop methods inline away)
//   - Metrics activation without code changes (just swap implementation)
//   - Clean testing (inject mock recorder for verification)
//   - Gradual rollout (enable metrics per-component)
//
// # Current State
//
// Every service command in cmd/worker injects a PrometheusRecorder.
// Constructors given a nil Recorder fall back to NoopRecorder.
package metrics
