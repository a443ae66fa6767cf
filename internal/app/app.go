// Package app wires configuration, logging, the connection pool, and the
// health monitor into a runnable service.
package app

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"kairodb/internal/config"
	"kairodb/internal/platform/logger"
	"kairodb/internal/platform/mysql"
	"kairodb/internal/platform/scheduler"
	"kairodb/pkg/retry"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "kairodb",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Logger exposes the application logger.
func (a *App) Logger() *slog.Logger {
	return a.log
}

func (a *App) dsn() (string, error) {
	dc := mysql.DSNConfig{
		Host:     a.cfg.DB.Host,
		Port:     a.cfg.DB.Port,
		User:     a.cfg.DB.User,
		Password: a.cfg.DB.Password,
		Database: a.cfg.DB.Name,
	}
	if err := mysql.ValidateConfig(dc); err != nil {
		return "", err
	}
	return mysql.BuildDSN(dc), nil
}

func (a *App) poolOptions() mysql.PoolOptions {
	opts := mysql.DefaultPoolOptions()
	opts.MinCached = a.cfg.DB.MinCached
	opts.MaxCached = a.cfg.DB.MaxCached
	opts.MaxShared = a.cfg.DB.MaxShared
	opts.MaxConns = a.cfg.DB.MaxConnections
	opts.AcquireTimeout = a.cfg.DB.AcquireTimeout
	return opts
}

// Run starts the service: it waits for the database, initializes the shared
// pool, and keeps a periodic health check going until a shutdown signal.
func (a *App) Run() error {
	a.log.Info("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn, err := a.dsn()
	if err != nil {
		return err
	}

	waitCfg := retry.DefaultConfig()
	waitCfg.MaxAttempts = 10
	waitCfg.InitialDelay = time.Second
	waitCfg.OnRetry = func(attempt int, err error, next time.Duration) {
		a.log.Warn("database not ready",
			slog.Int("attempt", attempt),
			slog.Duration("next_try_in", next),
			slog.Any("error", err))
	}
	if err := mysql.WaitForDB(ctx, dsn, waitCfg); err != nil {
		return err
	}

	pool, err := mysql.Init(ctx, dsn, a.poolOptions())
	if err != nil {
		return err
	}
	pool.SetLogger(a.log)
	defer func() {
		mysql.Shutdown()
		if err := logger.Close(a.log); err != nil {
			a.log.Error("logger close", slog.Any("error", err))
		}
	}()

	sched := scheduler.New(ctx, a.log)
	_, err = sched.AddJob(a.cfg.Health.Schedule, func(jobCtx context.Context) error {
		if err := pool.HealthCheck(jobCtx); err != nil {
			return err
		}
		st := pool.Stat()
		a.log.Debug("pool health",
			slog.Int("open", st.Open),
			slog.Int("idle", st.Idle),
			slog.Int("in_use", st.InUse),
			slog.Int("waiting", st.Waiting))
		return nil
	}, scheduler.JobOptions{
		Name:          "db-health",
		Timeout:       15 * time.Second,
		SkipIfRunning: true,
	})
	if err != nil {
		return err
	}
	sched.Start()

	a.log.Info("ready",
		slog.String("db", a.cfg.DB.Name),
		slog.Int("max_conns", a.cfg.DB.MaxConnections))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sched.StopContext(shutdownCtx)
}

// Ping performs a one-shot database health check and returns pool stats.
// The initial connection is retried with backoff so a database that is busy
// starting up does not immediately fail the check.
func (a *App) Ping(ctx context.Context) (mysql.Stats, error) {
	dsn, err := a.dsn()
	if err != nil {
		return mysql.Stats{}, err
	}

	waitCfg := retry.DefaultConfig()
	waitCfg.InitialDelay = 500 * time.Millisecond
	if err := mysql.WaitForDB(ctx, dsn, waitCfg); err != nil {
		return mysql.Stats{}, err
	}

	pool, err := mysql.NewPool(ctx, dsn, a.poolOptions())
	if err != nil {
		return mysql.Stats{}, err
	}
	defer pool.Close()
	pool.SetLogger(a.log)

	if err := pool.HealthCheck(ctx); err != nil {
		return mysql.Stats{}, err
	}
	return pool.Stat(), nil
}
