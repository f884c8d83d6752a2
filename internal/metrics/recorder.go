package metrics

import "time"

// Recorder defines observability hooks for pipeline rounds and reload
// fan-out. Implementations may forward to Prometheus; NoopRecorder is the
// default.
type Recorder interface {
	ObserveRebuild(pipeline string, d time.Duration, success bool)
	IncInvalidation(pipeline, reason string)
	IncManifestWrite()
	IncReload()
	SetSubscribers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRebuild(string, time.Duration, bool) {}
func (NoopRecorder) IncInvalidation(string, string)             {}
func (NoopRecorder) IncManifestWrite()                          {}
func (NoopRecorder) IncReload()                                 {}
func (NoopRecorder) SetSubscribers(int)                         {}
