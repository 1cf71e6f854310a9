package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/reeveci/reeve-matrix/schema"
)

const namespace = "reeve_matrix"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry           *prom.Registry
	stageDuration      *prom.HistogramVec
	stageResults       *prom.CounterVec
	runDuration        *prom.HistogramVec
	runResults         *prom.CounterVec
	publishResults     *prom.CounterVec
	invocationDuration prom.Histogram
	invocationResults  *prom.CounterVec
	notifications      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg, or on a fresh
// registry if reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual stages",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"channel", "stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage results by channel and status",
		}, []string{"channel", "stage", "status"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of run configurations",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}, []string{"channel"}),
		runResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_results_total",
			Help:      "Run configuration outcomes",
		}, []string{"channel", "status"}),
		publishResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Publish action outcomes",
		}, []string{"action", "status"}),
		invocationDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Total invocation duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		invocationResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_results_total",
			Help:      "Invocation outcomes",
		}, []string{"status"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.runDuration, pr.runResults,
		pr.publishResults, pr.invocationDuration, pr.invocationResults, pr.notifications)
	return pr
}

func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveStage(channel, stage string, status schema.Status, d time.Duration) {
	if p == nil {
		return
	}
	if status != schema.STATUS_SKIPPED {
		p.stageDuration.WithLabelValues(channel, stage).Observe(d.Seconds())
	}
	p.stageResults.WithLabelValues(channel, stage, string(status)).Inc()
}

func (p *PrometheusRecorder) ObserveRun(channel string, status schema.Status, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(channel).Observe(d.Seconds())
	p.runResults.WithLabelValues(channel, string(status)).Inc()
}

func (p *PrometheusRecorder) ObservePublish(action string, status schema.Status, d time.Duration) {
	if p == nil {
		return
	}
	p.publishResults.WithLabelValues(action, string(status)).Inc()
}

func (p *PrometheusRecorder) ObserveInvocation(status schema.Status, d time.Duration) {
	if p == nil {
		return
	}
	p.invocationDuration.Observe(d.Seconds())
	p.invocationResults.WithLabelValues(string(status)).Inc()
}

func (p *PrometheusRecorder) IncNotification(sink string, delivered bool) {
	if p == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	p.notifications.WithLabelValues(sink, result).Inc()
}

// WriteTextfile exports the gathered metrics in the node exporter textfile format.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.registry)
}
