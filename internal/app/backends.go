package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartlab/internal/access"
	"smartlab/internal/attendance"
	"smartlab/internal/config"
	"smartlab/internal/device"
	"smartlab/internal/httpapi"
	"smartlab/internal/person"
	"smartlab/internal/queue"
	"smartlab/internal/store"
)

// Backends are the storage, cache and queue implementations selected by
// configuration.
type Backends struct {
	DB    *store.DB
	Redis *store.Redis

	People      person.Repository
	Attendance  attendance.Store
	Devices     device.Registry
	ReaderCache access.ReaderCache
	Queue       queue.Queue
}

// Open connects every backend cfg asks for. Postgres is migrated first when
// AutoMigrate is set.
func Open(ctx context.Context, cfg config.App, log *zap.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		b.People = person.NewMemoryRepository()
		b.Attendance = attendance.NewMemoryStore()
		b.Devices = device.NewMemoryRegistry()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.DB = db
		if cfg.AutoMigrate {
			if err := store.Migrate(db.Client, log.Named("migrate")); err != nil {
				b.Close()
				return nil, err
			}
		}
		b.People = person.NewPostgresRepository(db.Client)
		b.Attendance = attendance.NewRepository(db.Client)
		b.Devices = device.NewPostgresRegistry(db.Client)
	}

	if cfg.ReaderCacheBackend == "redis" || cfg.QueueBackend == "redis" {
		rdb, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
		if !b.Redis.Healthy(ctx) {
			log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	if cfg.ReaderCacheBackend == "redis" {
		b.ReaderCache = access.NewRedisReaderCache(b.Redis.Client, nil)
	} else {
		b.ReaderCache = access.NewMemoryReaderCache(nil)
	}

	if cfg.QueueBackend == "redis" {
		b.Queue = queue.NewRedisQueue(b.Redis.Client, queue.DefaultKey, log.Named("queue"))
	} else {
		b.Queue = queue.NewInMemory(64)
	}
	return b, nil
}

// MustPostgres returns the database or an error when the store is in memory.
func (b *Backends) MustPostgres() (*store.DB, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("postgres store not configured")
	}
	return b.DB, nil
}

// Health lists the reachability checks of the configured backends.
func (b *Backends) Health() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if b.DB != nil {
		checks["db"] = b.DB.Healthy
	}
	if b.Redis != nil {
		checks["redis"] = b.Redis.Healthy
	}
	return checks
}

// Close releases every connection.
func (b *Backends) Close() {
	_ = b.Redis.Close()
	_ = b.DB.Close()
}
