package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/storage/blob"
	"github.com/aristath/foresight/internal/storage/predcache"
	"github.com/aristath/foresight/internal/storage/redisconn"
)

// needsRedis reports whether any configured backend is redis
func needsRedis(cfg *config.Config) bool {
	return cfg.Blob.Backend == "redis" || cfg.Cache.Backend == "redis"
}

// InitializeDatabase opens the durable bar store
func InitializeDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(database.Config{
		Driver: database.Driver(cfg.Database.Driver),
		DSN:    cfg.Database.DSN,
		Name:   "bars",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bars database: %w", err)
	}
	return db, nil
}

// InitializeRedis connects the shared redis client when a backend needs it
func InitializeRedis(cfg *config.Config) (*redis.Client, error) {
	if !needsRedis(cfg) {
		return nil, nil
	}
	client, err := redisconn.Open(redisconn.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	return client, nil
}

// InitializeBlobStore selects the model artifact backend
func InitializeBlobStore(ctx context.Context, cfg *config.Config, client redis.Cmdable) (domain.BlobStore, error) {
	switch cfg.Blob.Backend {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.Blob.Bucket,
			Endpoint:        cfg.Blob.Endpoint,
			Region:          cfg.Blob.Region,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			Prefix:          cfg.Blob.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 blob store: %w", err)
		}
		return store, nil
	case "redis":
		return blob.NewRedisStore(client, cfg.Blob.Prefix), nil
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}

// InitializePredictionCache selects the prediction cache backend
func InitializePredictionCache(cfg *config.Config, client redis.Cmdable, db *database.DB) (domain.PredictionCache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return predcache.NewRedisStore(client), nil
	case "sql":
		return predcache.NewSQLStore(db), nil
	case "memory":
		return predcache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
