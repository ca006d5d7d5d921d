package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/repositories/memory"
	pgrepo "huddle/internal/infrastructure/repositories/postgres"
	redisrepo "huddle/internal/infrastructure/repositories/redis"
	"huddle/pkg/config"
	"huddle/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// StoreFactory connects the configured message store, falling back to the
// in-memory store when the backend cannot be reached.
type StoreFactory struct {
	driver      string
	redisClient *redis.Client
	db          *sql.DB
	store       ports.MessageStore
	logger      *zap.SugaredLogger
}

// NewStoreFactory connects to the configured backend, retrying with backoff
// before giving up on it.
func NewStoreFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*StoreFactory, error) {
	factory := &StoreFactory{
		driver: cfg.Store.Driver,
		logger: logger,
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Store.ConnectAttempts
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warnw("store connection failed, retrying",
			"driver", cfg.Store.Driver,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	switch cfg.Store.Driver {
	case DriverRedis:
		client, err := retry.Do(ctx, retryCfg, func() (*redis.Client, error) {
			return redisrepo.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, logger)
		})
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store", "error", err)
			break
		}
		factory.redisClient = client
		factory.store = redisrepo.NewRedisMessageStore(client)
		logger.Info("using Redis message store")

	case DriverPostgres:
		pool := pgrepo.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}
		db, err := retry.Do(ctx, retryCfg, func() (*sql.DB, error) {
			return pgrepo.Open(ctx, cfg.Postgres.DSN, pool, logger)
		})
		if err != nil {
			logger.Warnw("failed to connect to PostgreSQL, falling back to memory store", "error", err)
			break
		}
		factory.db = db
		factory.store = pgrepo.NewPostgresMessageStore(db)
		logger.Info("using PostgreSQL message store")

	case DriverMemory:
	default:
		return nil, errors.New("unknown store driver: " + cfg.Store.Driver)
	}

	if factory.store == nil {
		factory.driver = DriverMemory
		factory.store = memory.NewMemoryMessageStore()
		logger.Info("using memory message store")
	}

	return factory, nil
}

// MessageStore returns the connected store.
func (f *StoreFactory) MessageStore() ports.MessageStore {
	return f.store
}

// Driver is the backend actually in use after any fallback.
func (f *StoreFactory) Driver() string {
	return f.driver
}

// RedisClient is nil unless the Redis driver is in use.
func (f *StoreFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close releases backend connections
func (f *StoreFactory) Close() error {
	var errs []error
	if f.redisClient != nil {
		errs = append(errs, redisrepo.CloseRedisClient(f.redisClient))
	}
	if f.db != nil {
		errs = append(errs, f.db.Close())
	}
	return errors.Join(errs...)
}
