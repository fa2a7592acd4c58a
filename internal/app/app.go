// Package app wires configuration, storage, the mail provider and the
// poller into a runnable service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/api"
	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/mailer"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
	"github.com/ignite/campaign-dispatch/internal/recurrence"
	"github.com/ignite/campaign-dispatch/internal/render"
	"github.com/ignite/campaign-dispatch/internal/repository/postgres"
	"github.com/ignite/campaign-dispatch/internal/scheduler"
)

// TickLockKey names the cross-process tick lock.
const TickLockKey = "dispatch-tick"

// App is the assembled service.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Poller *scheduler.Poller
	API    *api.Server
}

// New connects to the database (and Redis when configured), builds the mail
// sender and assembles the App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	ConfigureLogging(cfg.Log)

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	sender, err := mailer.New(ctx, cfg.Mail)
	if err != nil {
		db.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, fmt.Errorf("mail provider: %w", err)
	}

	return Build(cfg, db, rdb, sender), nil
}

// Build assembles the App from already-open dependencies. rdb may be nil.
func Build(cfg *config.Config, db *sql.DB, rdb *redis.Client, sender mailer.Sender) *App {
	repos := postgres.NewRepos(db)

	exec := dispatch.NewExecutor(
		dispatch.Stores{
			Campaigns:  repos.Campaigns,
			Templates:  repos.Templates,
			Schedules:  repos.Schedules,
			Deliveries: repos.Deliveries,
		},
		audience.NewResolver(repos.Contacts, repos.Segments, repos.Suppressions),
		render.New(cfg.Render.Locale),
		sender,
		recurrence.NewPlanner(),
		dispatch.Options{
			BatchSize:  cfg.Dispatch.BatchSize,
			MaxRetries: cfg.Dispatch.MaxRetries,
			Backoff: retry.Policy{
				MaxRetries: cfg.Dispatch.MaxRetries,
				BaseDelay:  time.Duration(cfg.Dispatch.BackoffBaseMS) * time.Millisecond,
				MaxDelay:   time.Duration(cfg.Dispatch.BackoffMaxMS) * time.Millisecond,
				MinDelay:   100 * time.Millisecond,
				Jitter:     true,
			},
			Locale:      cfg.Render.Locale,
			MaxAttempts: cfg.Dispatch.MaxAttempts,
		},
	)

	opts := scheduler.Options{
		Interval:         cfg.Scheduler.Interval(),
		MaxProcessingAge: cfg.Scheduler.MaxProcessingAge(),
		BatchLimit:       cfg.Scheduler.BatchLimit,
	}
	if !cfg.Scheduler.DisableLock {
		opts.Lock = distlock.NewLock(rdb, db, TickLockKey, cfg.Scheduler.LockTTL())
	}
	poller := scheduler.NewPoller(repos.Schedules, exec, opts)

	return &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Poller: poller,
		API:    api.NewServer(poller, cfg.Server.CronSecret, api.NewHealthChecker(db, rdb)),
	}
}

// Handler returns the HTTP trigger router.
func (a *App) Handler() http.Handler {
	return a.API.Routes(a.Config.Server.CORSOrigins)
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("close redis", "error", err.Error())
		}
	}
	if err := a.DB.Close(); err != nil {
		logger.Warn("close database", "error", err.Error())
	}
}

// ConfigureLogging applies the log section to the process logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}
