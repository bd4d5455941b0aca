package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medisync/clinic-scheduler/internal/api"
	"github.com/medisync/clinic-scheduler/internal/config"
	"github.com/medisync/clinic-scheduler/internal/db"
	redisclient "github.com/medisync/clinic-scheduler/internal/redis"
	"github.com/medisync/clinic-scheduler/internal/scheduling"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("clinic_timezone", cfg.ClinicTimezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.ClientOptions{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		ReadTimeout:  cfg.RedisReadTimeout,
		WriteTimeout: cfg.RedisWriteTimeout,
		PoolSize:     cfg.RedisPoolSize,
	})
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		log.Fatal("invalid clinic timezone", zap.Error(err))
	}

	store := scheduling.NewPgStore(pgPool)
	locker := redisclient.NewResourceDayLocker(rdb, cfg.LockTTL)
	engine := scheduling.NewEngine(store, locker, scheduling.Options{
		Location: loc,
		Window: scheduling.SearchWindow{
			DayStartMinutes:  cfg.DayStartMinutes,
			DayEndMinutes:    cfg.DayEndMinutes,
			IncrementMinutes: cfg.SlotIncrement,
		},
		ReservationRetries: cfg.ReservationRetries,
	}, log)

	router := api.NewRouter(api.RouterConfig{
		Scheduler:      engine,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         log,
		Env:            cfg.Env,
		Version:        version,
		MaxHorizonDays: cfg.MaxHorizonDays,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "prod" {
		log, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log
}
