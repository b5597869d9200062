// Package app wires configuration into the running services. The API server
// and the admin CLI build the same graph.
package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/xelth-com/colocacion/internal/cache"
	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/database"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/events"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/optimistic"
	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/scheduler"
	"github.com/xelth-com/colocacion/internal/services/odoo"
	"github.com/xelth-com/colocacion/internal/services/placement"
	"github.com/xelth-com/colocacion/internal/store"
	"github.com/xelth-com/colocacion/internal/sync"
)

type App struct {
	Config     *config.Config
	Clock      clock.Clock
	DB         *database.DB
	Redis      *redis.Client
	KV         *kv.Store
	Stores     store.Stores
	Metrics    *metrics.Metrics
	Cache      *cache.Cache
	Optimistic *optimistic.Manager
	Queue      *printqueue.Queue
	Sync       *sync.Engine
	Events     events.Publisher
	Placement  *placement.Service
}

// New connects to postgres and redis and constructs every service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Component("app")
	a := &App{Config: cfg, Clock: clock.NewRealClock()}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	log.Info().Msg("🚀 Synchronizing database schema...")
	if err := db.Migrate(); err != nil {
		a.Close()
		return nil, errs.Wrap(err, "migrate schema")
	}

	rdb, err := kv.Connect(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Redis = rdb
	a.KV = kv.New(rdb)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	pub, err := events.New(cfg.Kafka)
	if err != nil {
		// Events are best effort; run without them rather than refuse to start
		log.Warn().Err(err).Msg("⚠️ Kafka unavailable, location events disabled")
		pub = events.Nop{}
	}
	a.Events = pub

	a.Stores = store.NewGormStore(db.DB).Stores()
	a.Cache = cache.New(a.KV, cfg.Cache, a.Clock, a.Metrics)
	a.Optimistic = optimistic.NewManager(a.Stores.Products, a.KV, cfg.Optimistic, a.Clock, a.Metrics)
	a.Queue = printqueue.New(a.KV, a.Stores.Labels, cfg.Queue, a.Clock, a.Metrics)

	erp := odoo.NewERP(odoo.NewClient(cfg.Odoo, a.Clock), cfg.Odoo.LocationField)
	a.Sync = sync.NewEngine(a.Stores.Products, erp, a.Cache, a.KV, cfg.Sync, a.Clock, a.Metrics)
	a.Placement = placement.NewService(a.Stores, a.Cache, a.Optimistic, a.Queue, a.Events, a.Clock)

	return a, nil
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	log := logger.Component("app")
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			log.Warn().Err(err).Msg("event publisher close error")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close error")
		}
	}
	if a.DB != nil {
		log.Info().Msg("🛑 Closing database connection...")
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("database close error")
		}
	}
}

// PurgeLabels removes labels printed more than Queue.LabelRetainDays ago
func (a *App) PurgeLabels(ctx context.Context) (int, error) {
	days := a.Config.Queue.LabelRetainDays
	if days <= 0 {
		return 0, nil
	}
	cutoff := a.Clock.Now().AddDate(0, 0, -days)
	n, err := a.Stores.Labels.PurgePrinted(ctx, cutoff)
	return int(n), err
}

// Reaper returns the periodic cleanup of expired updates, stale leases and
// old printed labels
func (a *App) Reaper() *scheduler.Reaper {
	return scheduler.NewReaper(
		scheduler.Task{Name: "optimistic-updates", Interval: a.Config.Optimistic.ReapInterval, Run: a.Optimistic.CleanupExpired},
		scheduler.Task{Name: "print-leases", Interval: a.Config.Optimistic.ReapInterval, Run: a.Queue.CleanupExpired},
		scheduler.Task{Name: "printed-labels", Interval: 24 * time.Hour, Run: a.PurgeLabels},
	)
}
