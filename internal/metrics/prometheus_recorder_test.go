package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("build", 150*time.Millisecond)
	pr.ObserveJobDuration("android", 500*time.Millisecond)
	pr.IncStageResult("build", StageResultSuccess)
	pr.IncJobOutcome("android", JobOutcomeSuccess)
	pr.ObserveUpdaterSyncDuration(2*time.Second, 3, 1)
	pr.SetQueueDepth(4)
	pr.IncNotifierRetry()
	pr.IncNotifierDiscard()
	pr.IncRegistrationFailure("builder")
	pr.SetWorking("builder", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}
