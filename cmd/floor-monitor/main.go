package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rkurbanov/lounge-ops/internal/config"
	"github.com/rkurbanov/lounge-ops/internal/floor/application"
	floorhttp "github.com/rkurbanov/lounge-ops/internal/floor/infrastructure/http"
	floorkafka "github.com/rkurbanov/lounge-ops/internal/floor/infrastructure/kafka"
	floorpg "github.com/rkurbanov/lounge-ops/internal/floor/infrastructure/postgres"
	"github.com/rkurbanov/lounge-ops/pkg/idempotency"
	"github.com/rkurbanov/lounge-ops/pkg/logging"
	"github.com/rkurbanov/lounge-ops/pkg/shutdown"
	"github.com/rkurbanov/lounge-ops/pkg/tracing"
)

func main() {
	cfg, err := config.Load("floor-monitor")
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.App.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.App.Name, cfg.Jaeger.URL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	repo := floorpg.NewRepository(log, pool)
	monitor := application.NewMonitor(log, repo)
	consumer := floorkafka.NewConsumer(log, cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.Kafka.ConsumerGroup, monitor, idem)
	handler := floorhttp.NewHandler(log, monitor, repo)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:        cfg.HTTP.Address(),
		Handler:     r,
		ReadTimeout: 5 * time.Second,
		// no write timeout, the SSE stream stays open
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTP.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("floor-monitor stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("floor-monitor shutdown complete")
}
