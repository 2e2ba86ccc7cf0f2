// Package di wires the Foresight dependency graph.
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/channels"
	"github.com/aristath/foresight/internal/cleanup"
	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/forecast"
	"github.com/aristath/foresight/internal/ingest"
	"github.com/aristath/foresight/internal/jobs"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/prediction"
	"github.com/aristath/foresight/internal/refresh"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/storage/bars"
	"github.com/aristath/foresight/internal/storage/blob"
	"github.com/aristath/foresight/internal/training"
)

// Container holds every long-lived dependency created by Wire.
//
// Stores are created first, then the forecasting primitives, then the stage
// coordinators, the request path and finally the scheduler with its jobs.
type Container struct {
	Universe *domain.Universe

	// Stores
	DB          *database.DB
	Redis       *redis.Client // nil when no backend uses redis
	Blobs       domain.BlobStore
	Cache       domain.PredictionCache
	BarRepo     *bars.Repository
	LocalBars   *bars.WorkingCopies
	LocalModels *blob.Directory
	Series      *bars.Resolver

	// Forecasting
	Trainer forecast.Trainer
	Codec   forecast.Codec
	Engine  *forecast.Engine

	// Stages
	Locks      *scheduler.Locks
	Training   *training.Coordinator
	Refresh    *refresh.Coordinator
	Purger     *cleanup.Purger
	Scraper    *ingest.Scraper
	Pipeline   *jobs.Pipeline
	Scheduler  *scheduler.Scheduler
	Prediction *prediction.Service

	// Channels
	Dispatcher *channels.Dispatcher
	Telegram   channels.Notifier // nil when not configured
	WhatsApp   channels.Notifier // nil when not configured
	Kafka      *channels.KafkaNotifier
	Listener   *channels.Listener

	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	log     zerolog.Logger
	closers []func() error
}
