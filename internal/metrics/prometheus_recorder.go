package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	rebuildDuration *prom.HistogramVec
	rebuildResults  *prom.CounterVec
	invalidations   *prom.CounterVec
	manifestWrites  prom.Counter
	reloads         prom.Counter
	subscribers     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		rebuildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "twinbuild",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of pipeline compiles",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline"}),
		rebuildResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "twinbuild",
			Name:      "rebuild_results_total",
			Help:      "Pipeline compile results by outcome",
		}, []string{"pipeline", "result"}),
		invalidations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "twinbuild",
			Name:      "invalidations_total",
			Help:      "Forced pipeline rebuilds by reason",
		}, []string{"pipeline", "reason"}),
		manifestWrites: prom.NewCounter(prom.CounterOpts{
			Namespace: "twinbuild",
			Name:      "manifest_writes_total",
			Help:      "Manifest artifacts written",
		}),
		reloads: prom.NewCounter(prom.CounterOpts{
			Namespace: "twinbuild",
			Name:      "reload_broadcasts_total",
			Help:      "Reload messages broadcast to browsers",
		}),
		subscribers: prom.NewGauge(prom.GaugeOpts{
			Namespace: "twinbuild",
			Name:      "reload_subscribers",
			Help:      "Connected reload channel subscribers",
		}),
	}
	reg.MustRegister(pr.rebuildDuration, pr.rebuildResults, pr.invalidations, pr.manifestWrites, pr.reloads, pr.subscribers)
	return pr
}

func (p *PrometheusRecorder) ObserveRebuild(pipeline string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.rebuildDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	p.rebuildResults.WithLabelValues(pipeline, res).Inc()
}

func (p *PrometheusRecorder) IncInvalidation(pipeline, reason string) {
	if p == nil {
		return
	}
	p.invalidations.WithLabelValues(pipeline, reason).Inc()
}

func (p *PrometheusRecorder) IncManifestWrite() {
	if p == nil {
		return
	}
	p.manifestWrites.Inc()
}

func (p *PrometheusRecorder) IncReload() {
	if p == nil {
		return
	}
	p.reloads.Inc()
}

func (p *PrometheusRecorder) SetSubscribers(n int) {
	if p == nil {
		return
	}
	p.subscribers.Set(float64(n))
}
