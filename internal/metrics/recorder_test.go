package metrics

import "time"

type testRecorder struct {
	stageDurations map[string]int
	stageResults   map[string]map[StageResultLabel]int
	jobDurations   map[string]int
	jobOutcomes    map[string]int
	queueDepth     int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		stageDurations: map[string]int{},
		stageResults:   map[string]map[StageResultLabel]int{},
		jobDurations:   map[string]int{},
		jobOutcomes:    map[string]int{},
	}
}

func (t *testRecorder) ObserveStageDuration(stage string, _ time.Duration) { t.stageDurations[stage]++ }
func (t *testRecorder) ObserveJobDuration(platform string, _ time.Duration) {
	t.jobDurations[platform]++
}
func (t *testRecorder) IncStageResult(stage string, result StageResultLabel) {
	m, ok := t.stageResults[stage]
	if !ok {
		m = map[StageResultLabel]int{}
		t.stageResults[stage] = m
	}
	m[result]++
}
func (t *testRecorder) IncJobOutcome(platform string, outcome JobOutcomeLabel) {
	t.jobOutcomes[platform+":"+string(outcome)]++
}
func (t *testRecorder) ObserveUpdaterSyncDuration(time.Duration, int, int) {}
func (t *testRecorder) IncUpdaterSyncError()                              {}
func (t *testRecorder) SetQueueDepth(n int)                               { t.queueDepth = n }
func (t *testRecorder) IncNotifierRetry()                                 {}
func (t *testRecorder) IncNotifierDiscard()                               {}
func (t *testRecorder) IncRegistrationFailure(string)                     {}
func (t *testRecorder) SetWorking(string, bool)                           {}
