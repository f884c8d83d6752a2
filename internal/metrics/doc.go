// Package metrics records pipeline and reload metrics.
//
// Components receive a Recorder through their options; NoopRecorder is used
// when metrics are disabled, so callers never check for nil. When
// metrics.enabled is set, the orchestrator swaps in a PrometheusRecorder and
// serves it on the dev server's metrics path.
package metrics
