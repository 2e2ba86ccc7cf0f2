package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/channels"
	"github.com/aristath/foresight/internal/cleanup"
	"github.com/aristath/foresight/internal/clients/nepse"
	"github.com/aristath/foresight/internal/clients/yahoo"
	"github.com/aristath/foresight/internal/config"
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
	"github.com/aristath/foresight/internal/storage/predcache"
	"github.com/aristath/foresight/internal/training"
)

const (
	// channelTimeout bounds one asynchronous channel request
	channelTimeout = 2 * time.Minute

	// CacheSweep removes expired rows from the sql prediction cache
	CacheSweep scheduler.JobID = "cache-sweep"
)

// Wire builds the container. On error everything created so far is closed.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{log: log.With().Str("component", "di").Logger()}

	if err := c.wire(cfg, log); err != nil {
		if closeErr := c.Close(); closeErr != nil {
			c.log.Error().Err(closeErr).Msg("Failed to release partially wired dependencies")
		}
		return nil, err
	}

	c.log.Info().
		Int("instruments", c.Universe.Len()).
		Str("blob_backend", cfg.Blob.Backend).
		Str("cache_backend", cfg.Cache.Backend).
		Str("db_driver", cfg.Database.Driver).
		Msg("Dependencies wired")
	return c, nil
}

func (c *Container) wire(cfg *config.Config, log zerolog.Logger) error {
	universe, err := cfg.Universe()
	if err != nil {
		return err
	}
	c.Universe = universe

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	// Step 1: stores
	if err := c.initializeStores(cfg, log); err != nil {
		return err
	}

	// Step 2: forecasting primitives
	c.Trainer = forecast.NewRidgeTrainer(cfg.LookBack, forecast.DefaultLambda)
	c.Codec = forecast.RidgeCodec{}
	c.Engine = forecast.NewEngine(cfg.TimeSteps)

	// Step 3: stage coordinators sharing one lock table with the scheduler
	c.Locks = scheduler.NewLocks()
	c.Training = training.NewCoordinator(
		c.Series, c.Blobs, c.LocalModels, c.Trainer, c.Codec, c.Locks, c.Metrics,
		training.Config{LookBack: cfg.LookBack, TrainSplit: cfg.TrainSplit}, log,
	)
	c.Refresh = refresh.NewCoordinator(refresh.Deps{
		LocalModels: c.LocalModels,
		LocalBars:   c.LocalBars,
		Blobs:       c.Blobs,
		Durable:     c.BarRepo,
		Cache:       c.Cache,
		Series:      c.Series,
		Codec:       c.Codec,
		Engine:      c.Engine,
		Locks:       c.Locks,
		Metrics:     c.Metrics,
	}, cfg.PredictionTTL, log)
	c.Purger = cleanup.NewPurger(c.LocalModels, c.LocalBars, c.Blobs, c.BarRepo, c.Locks, c.Metrics, log)
	c.Scraper = ingest.NewScraper(map[domain.Market]ingest.Source{
		domain.MarketNAS: yahoo.NewClient(log),
		domain.MarketNPS: nepse.NewClient(cfg.NepseURL, log),
	}, c.LocalBars, cfg.ScrapeMonths, c.Locks, c.Metrics, log)

	// Step 4: request path
	c.Prediction = prediction.NewService(c.Cache, c.Blobs, c.Series, c.Codec, c.Engine, cfg.PredictionTTL, c.Metrics, log)
	c.initializeChannels(cfg, log)

	// Step 5: jobs
	c.Pipeline = jobs.NewPipeline(universe, c.Training, c.Refresh, c.Purger, c.Scraper, log)
	c.Scheduler = scheduler.New(log, c.Locks, scheduler.WithObserver(c.Metrics))
	schedules, err := parseSchedules(cfg)
	if err != nil {
		return err
	}
	if err := jobs.Register(c.Scheduler, c.Pipeline, schedules); err != nil {
		return err
	}
	return c.registerCacheSweep(log)
}

func (c *Container) initializeStores(cfg *config.Config, log zerolog.Logger) error {
	db, err := InitializeDatabase(cfg)
	if err != nil {
		return err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)

	client, err := InitializeRedis(cfg)
	if err != nil {
		return err
	}
	if client != nil {
		c.Redis = client
		c.closers = append(c.closers, client.Close)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if c.Blobs, err = InitializeBlobStore(ctx, cfg, client); err != nil {
		return err
	}
	if c.Cache, err = InitializePredictionCache(cfg, client, db); err != nil {
		return err
	}

	c.BarRepo = bars.NewRepository(db, log)
	c.LocalBars = bars.NewWorkingCopies(cfg.PricesDir())
	c.LocalModels = blob.NewDirectory(cfg.ModelsDir())
	c.Series = bars.NewResolver(c.LocalBars, c.BarRepo, log)
	return nil
}

// initializeChannels builds the dispatcher and every configured notifier
func (c *Container) initializeChannels(cfg *config.Config, log zerolog.Logger) {
	if cfg.Telegram.Enabled() {
		c.Telegram = channels.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.BaseURL, log)
	}
	if cfg.Twilio.Enabled() {
		c.WhatsApp = channels.NewTwilioNotifier(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, cfg.Twilio.BaseURL, log)
	}

	dispatcher := channels.NewDispatcher(c.Prediction, channelTimeout, c.Metrics, log)
	if !cfg.Kafka.Enabled() {
		c.attachDispatcher(dispatcher, nil, nil, log)
		return
	}
	c.attachDispatcher(dispatcher,
		channels.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.ReplyTopic),
		channels.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.RequestTopic, cfg.Kafka.GroupID),
		log,
	)
}

// attachDispatcher installs the dispatcher and, when writer is set, the Kafka
// reply sink and request listener. Closers run in reverse: the listener stops
// reading, the dispatcher drains in-flight replies, then the writer closes.
func (c *Container) attachDispatcher(d *channels.Dispatcher, writer channels.MessageWriter, reader channels.MessageReader, log zerolog.Logger) {
	c.Dispatcher = d
	if writer != nil {
		c.Kafka = channels.NewKafkaNotifier(writer)
		c.closers = append(c.closers, c.Kafka.Close)
	}
	c.closers = append(c.closers, func() error {
		d.Close()
		return nil
	})
	if writer != nil && reader != nil {
		c.Listener = channels.NewListener(reader, c.Kafka, d, log)
		c.closers = append(c.closers, c.Listener.Close)
	}
}

func parseSchedules(cfg *config.Config) (jobs.Schedules, error) {
	var s jobs.Schedules
	for _, t := range []struct {
		name string
		spec string
		dst  *scheduler.Trigger
	}{
		{"training", cfg.TrainingSchedule, &s.Training},
		{"refresh", cfg.RefreshSchedule, &s.RefreshCache},
		{"scrape", cfg.ScrapeSchedule, &s.Scrape},
	} {
		if t.spec == "" {
			continue
		}
		trigger, err := scheduler.ParseTrigger(t.spec)
		if err != nil {
			return s, fmt.Errorf("invalid %s schedule: %w", t.name, err)
		}
		*t.dst = trigger
	}
	return s, nil
}

// registerCacheSweep schedules a daily purge of expired rows when the
// prediction cache lives in the database. Other backends expire natively.
func (c *Container) registerCacheSweep(log zerolog.Logger) error {
	store, ok := c.Cache.(*predcache.SQLStore)
	if !ok {
		return nil
	}
	log = log.With().Str("job", string(CacheSweep)).Logger()
	return c.Scheduler.Schedule(CacheSweep, scheduler.Every(24*time.Hour), func(ctx context.Context) error {
		deleted, err := store.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Expired predictions removed")
		}
		return nil
	})
}

// HealthCheck verifies the durable store and, when used, redis
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.DB.HealthCheck(ctx); err != nil {
		return domain.Unavailable("database health", err)
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return domain.Unavailable("redis health", err)
		}
	}
	return nil
}

// Close stops the scheduler and releases everything in reverse creation order.
// It is safe to call on a partially wired container.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
