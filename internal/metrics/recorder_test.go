package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.IncMutation("completion", OutcomeApplied)
	r.IncMutation("completion", OutcomeStale)
	r.IncMutation("completion", OutcomeStale)
	r.ObserveMutation("completion", 20*time.Millisecond)
	r.IncWorkflowEvent("task_completed", "applied")
	r.IncTransition("pending", "in_progress")
	r.IncDelta("job")
	r.IncCacheLookup(true)
	r.SetIdleJobs(2)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				byName[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				byName[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, byName["cleanflow_mutations_total"])
	assert.Equal(t, 2.0, byName["cleanflow_workflow_idle_jobs"])
	assert.Equal(t, 1.0, byName["cleanflow_status_cache_lookups_total"])
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.IncMutation("notes", OutcomeApplied)
	r.IncDroppedSubscriber()
	r.AddSubscribers(1)
	assert.NotNil(t, r.Handler())
}
