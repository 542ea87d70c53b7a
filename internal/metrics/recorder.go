package metrics

import "time"

// JobOutcomeLabel enumerates terminal job outcomes for counters.
type JobOutcomeLabel string

const (
	JobOutcomeSuccess  JobOutcomeLabel = "success"
	JobOutcomeFailed   JobOutcomeLabel = "failed"
	JobOutcomeWatchdog JobOutcomeLabel = "watchdog"
	JobOutcomeCrash    JobOutcomeLabel = "crash"
)

// StageResultLabel enumerates build-pipeline stage result categories.
type StageResultLabel string

const (
	StageResultSuccess  StageResultLabel = "success"
	StageResultFatal    StageResultLabel = "fatal"
	StageResultCanceled StageResultLabel = "canceled"
)

// Recorder defines the observability hooks the four services emit through. All
// methods must be safe for nil receivers so callers can pass a nil *PrometheusRecorder
// before one is wired, falling back to NoopRecorder semantics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveJobDuration(platform string, d time.Duration)
	IncStageResult(stage string, result StageResultLabel)
	IncJobOutcome(platform string, outcome JobOutcomeLabel)
	ObserveUpdaterSyncDuration(d time.Duration, downloads, purges int)
	IncUpdaterSyncError()
	SetQueueDepth(n int)
	IncNotifierRetry()
	IncNotifierDiscard()
	IncRegistrationFailure(service string)
	SetWorking(service string, working bool)
}

// NoopRecorder discards every observation; the default until a Prometheus
// registry is wired in.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)          {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration)            {}
func (NoopRecorder) IncStageResult(string, StageResultLabel)             {}
func (NoopRecorder) IncJobOutcome(string, JobOutcomeLabel)                {}
func (NoopRecorder) ObserveUpdaterSyncDuration(time.Duration, int, int)   {}
func (NoopRecorder) IncUpdaterSyncError()                                {}
func (NoopRecorder) SetQueueDepth(int)                                   {}
func (NoopRecorder) IncNotifierRetry()                                   {}
func (NoopRecorder) IncNotifierDiscard()                                 {}
func (NoopRecorder) IncRegistrationFailure(string)                       {}
func (NoopRecorder) SetWorking(string, bool)                             {}
