package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics registered on
// the registry it is built with. The Admin API's /metrics endpoint serves only
// the admin process's own registry.
type PrometheusRecorder struct {
	once sync.Once

	stageDuration     *prom.HistogramVec
	jobDuration       *prom.HistogramVec
	stageResults      *prom.CounterVec
	jobOutcomes       *prom.CounterVec
	updaterDuration   prom.Histogram
	updaterDownloads  prom.Counter
	updaterPurges     prom.Counter
	updaterErrors     prom.Counter
	queueDepth        prom.Gauge
	notifierRetries   prom.Counter
	notifierDiscards  prom.Counter
	registrationFails *prom.CounterVec
	working           *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics against reg
// (a fresh registry is created if reg is nil). Registration is idempotent per
// instance.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "compilerworker",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build-pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "compilerworker",
			Name:      "job_duration_seconds",
			Help:      "Total job duration by platform",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 2700},
		}, []string{"platform"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.jobOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes by platform",
		}, []string{"platform", "outcome"})
		pr.updaterDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "compilerworker",
			Name:      "updater_sync_duration_seconds",
			Help:      "Duration of an Updater reconcile iteration",
			Buckets:   prom.DefBuckets,
		})
		pr.updaterDownloads = prom.NewCounter(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "updater_downloads_total",
			Help:      "Dependency cache entries downloaded",
		})
		pr.updaterPurges = prom.NewCounter(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "updater_purges_total",
			Help:      "Dependency cache entries purged",
		})
		pr.updaterErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "updater_sync_errors_total",
			Help:      "Updater iterations aborted with an error",
		})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "compilerworker",
			Name:      "notification_queue_depth",
			Help:      "Observed depth of the durable notification queue",
		})
		pr.notifierRetries = prom.NewCounter(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "notifier_retries_total",
			Help:      "Notification messages left in-flight for redelivery",
		})
		pr.notifierDiscards = prom.NewCounter(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "notifier_discards_total",
			Help:      "Notification messages discarded after exceeding max retries",
		})
		pr.registrationFails = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "compilerworker",
			Name:      "registration_failures_total",
			Help:      "Backend registration/heartbeat failures by service",
		}, []string{"service"})
		pr.working = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "compilerworker",
			Name:      "service_working",
			Help:      "1 while a service is inside a job iteration, 0 otherwise",
		}, []string{"service"})

		reg.MustRegister(
			pr.stageDuration, pr.jobDuration, pr.stageResults, pr.jobOutcomes,
			pr.updaterDuration, pr.updaterDownloads, pr.updaterPurges, pr.updaterErrors,
			pr.queueDepth, pr.notifierRetries, pr.notifierDiscards, pr.registrationFails, pr.working,
		)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveJobDuration(platform string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result StageResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncJobOutcome(platform string, outcome JobOutcomeLabel) {
	if p == nil || p.jobOutcomes == nil {
		return
	}
	p.jobOutcomes.WithLabelValues(platform, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveUpdaterSyncDuration(d time.Duration, downloads, purges int) {
	if p == nil || p.updaterDuration == nil {
		return
	}
	p.updaterDuration.Observe(d.Seconds())
	p.updaterDownloads.Add(float64(downloads))
	p.updaterPurges.Add(float64(purges))
}

func (p *PrometheusRecorder) IncUpdaterSyncError() {
	if p == nil || p.updaterErrors == nil {
		return
	}
	p.updaterErrors.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) IncNotifierRetry() {
	if p == nil || p.notifierRetries == nil {
		return
	}
	p.notifierRetries.Inc()
}

func (p *PrometheusRecorder) IncNotifierDiscard() {
	if p == nil || p.notifierDiscards == nil {
		return
	}
	p.notifierDiscards.Inc()
}

func (p *PrometheusRecorder) IncRegistrationFailure(service string) {
	if p == nil || p.registrationFails == nil {
		return
	}
	p.registrationFails.WithLabelValues(service).Inc()
}

func (p *PrometheusRecorder) SetWorking(service string, working bool) {
	if p == nil || p.working == nil {
		return
	}
	v := 0.0
	if working {
		v = 1.0
	}
	p.working.WithLabelValues(service).Set(v)
}
