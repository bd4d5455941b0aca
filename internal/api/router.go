package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Scheduler      Scheduler
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Logger         *zap.Logger
	Env            string
	Version        string
	MaxHorizonDays int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/scheduling/find-available", findAvailableAppointmentsHandler(cfg.Scheduler, cfg.MaxHorizonDays))

	return r
}
