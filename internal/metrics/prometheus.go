// Package metrics exposes Foresight's Prometheus instruments. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records job, training, cache and channel metrics
type Recorder struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	trainingOutcomes *prometheus.CounterVec
	stageItems       *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	predictLatency   *prometheus.HistogramVec
	channelMessages  *prometheus.CounterVec
}

// New registers the instruments on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foresight_job_runs_total",
				Help: "Job triggers by outcome (completed, failed, dropped)",
			},
			[]string{"job", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foresight_job_duration_seconds",
				Help:    "Duration of executed job runs",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"job"},
		),
		trainingOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foresight_training_outcomes_total",
				Help: "Per-instrument training results",
			},
			[]string{"market", "status"},
		),
		stageItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foresight_stage_items_total",
				Help: "Items handled by refresh and cleanup stages",
			},
			[]string{"stage", "result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foresight_prediction_cache_lookups_total",
				Help: "Prediction cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		predictLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foresight_prediction_compute_seconds",
				Help:    "Time spent computing a prediction on a cache miss",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"market"},
		),
		channelMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foresight_channel_messages_total",
				Help: "Messages handled per channel and status",
			},
			[]string{"channel", "status"},
		),
	}
}

// JobFinished records a job trigger outcome
func (r *Recorder) JobFinished(job, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != "dropped" {
		r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// TrainingOutcome records one instrument's training result
func (r *Recorder) TrainingOutcome(market, status string) {
	if r == nil {
		return
	}
	r.trainingOutcomes.WithLabelValues(market, status).Inc()
}

// StageItem records one item processed by a refresh or cleanup stage
func (r *Recorder) StageItem(stage, result string) {
	if r == nil {
		return
	}
	r.stageItems.WithLabelValues(stage, result).Inc()
}

// CacheLookup records a prediction cache lookup result
func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// PredictionComputed records the latency of an on-demand prediction
func (r *Recorder) PredictionComputed(market string, d time.Duration) {
	if r == nil {
		return
	}
	r.predictLatency.WithLabelValues(market).Observe(d.Seconds())
}

// ChannelMessage records a message handled by a channel surface
func (r *Recorder) ChannelMessage(channel, status string) {
	if r == nil {
		return
	}
	r.channelMessages.WithLabelValues(channel, status).Inc()
}
