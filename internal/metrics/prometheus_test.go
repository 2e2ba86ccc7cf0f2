package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.JobFinished("training", "completed", time.Second)
	r.JobFinished("training", "dropped", 0)
	r.TrainingOutcome("NAS", "trained")
	r.StageItem("refresh-models", "stored")
	r.CacheLookup("hit")
	r.CacheLookup("miss")
	r.CacheLookup("miss")
	r.PredictionComputed("NAS", 20*time.Millisecond)
	r.ChannelMessage("whatsapp", "accepted")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("training", "dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDuration), "dropped triggers have no duration")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.JobFinished("training", "completed", time.Second)
		r.TrainingOutcome("NAS", "failed")
		r.StageItem("cleanup", "removed")
		r.CacheLookup("hit")
		r.PredictionComputed("NPS", time.Millisecond)
		r.ChannelMessage("telegram", "failed")
	})
}
