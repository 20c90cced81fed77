// Package app assembles the runtime shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"content-scheduler/internal/config"
	"content-scheduler/internal/lock"
	"content-scheduler/internal/logging"
	"content-scheduler/internal/models"
	"content-scheduler/internal/publisher"
	"content-scheduler/internal/scheduler"
	"content-scheduler/internal/slots"
	"content-scheduler/internal/store"
	"content-scheduler/internal/worker"
)

// Store is everything the engine persists.
type Store interface {
	scheduler.PostStore
	scheduler.RuleStore
	scheduler.ContentStore
	UpsertContent(ctx context.Context, item models.ContentItem) error
}

// Runtime holds the wired collaborators. Close releases them.
type Runtime struct {
	Config    config.Config
	Store     Store
	Redis     *redis.Client
	Locker    scheduler.Locker
	Publisher scheduler.Publisher
	Records   *scheduler.RecordLocks
	Service   *scheduler.Service

	closers []func()
}

// Build connects the configured backends. Postgres is migrated and seeded
// with the default rule; the memory backend seeds itself.
func Build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	log := logging.Component("app")
	rt := &Runtime{Config: cfg, Records: scheduler.NewRecordLocks()}

	switch cfg.StoreBackend {
	case "memory":
		rt.Store = store.NewMemory(time.Now().UTC())
	case "postgres":
		st, err := store.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, st.Close)
		if err := st.RunMigrations(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		if err := st.SeedDefaultRule(ctx, models.DefaultRule(time.Now().UTC())); err != nil {
			rt.Close()
			return nil, fmt.Errorf("seed default rule: %w", err)
		}
		rt.Store = st
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rt.closers = append(rt.closers, func() { _ = rt.Redis.Close() })
	}

	switch cfg.LockBackend {
	case "local":
		rt.Locker = lock.NewLocal()
	case "redis":
		if rt.Redis == nil {
			rt.Close()
			return nil, fmt.Errorf("lock backend redis requires REDIS_ADDR")
		}
		rt.Locker = lock.NewRedis(rt.Redis, cfg.LockTTL)
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}

	pub, err := publisher.New(ctx, cfg, rt.Redis)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("publisher: %w", err)
	}
	rt.Publisher = pub

	rt.Service = scheduler.NewService(scheduler.Deps{
		Posts:     rt.Store,
		Rules:     rt.Store,
		Content:   rt.Store,
		Publisher: rt.Publisher,
		Locker:    rt.Locker,
		Records:   rt.Records,
		Allocator: Allocator(cfg),
		Logger:    logging.Component("scheduler"),
	})

	log.WithFields(logrus.Fields{
		"store":     cfg.StoreBackend,
		"lock":      cfg.LockBackend,
		"publisher": cfg.Publisher,
		"timezone":  cfg.Location().String(),
	}).Info("runtime ready")
	return rt, nil
}

// Allocator builds the slot allocator from the scheduling settings.
func Allocator(cfg config.Config) slots.Allocator {
	a := slots.New(cfg.Location())
	if cfg.SlotTolerance > 0 {
		a.Tolerance = cfg.SlotTolerance
	}
	if cfg.HorizonDays > 0 {
		a.HorizonDays = cfg.HorizonDays
	}
	if cfg.EveningCutoffHour >= 0 && cfg.EveningCutoffHour <= 24 {
		a.CutoffHour = cfg.EveningCutoffHour
	}
	return a
}

// Processor builds the scheduler loop over the runtime's collaborators.
func (rt *Runtime) Processor() *worker.Processor {
	return worker.NewProcessor(rt.Config, worker.Deps{
		Posts:     rt.Store,
		Content:   rt.Store,
		Publisher: rt.Publisher,
		Locker:    rt.Locker,
		Records:   rt.Records,
	})
}

// Close releases backends in reverse order of acquisition.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
