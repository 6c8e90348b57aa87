package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rkurbanov/lounge-ops/internal/config"
	florapp "github.com/rkurbanov/lounge-ops/internal/floor/application"
	floorhttp "github.com/rkurbanov/lounge-ops/internal/floor/infrastructure/http"
	floorpg "github.com/rkurbanov/lounge-ops/internal/floor/infrastructure/postgres"
	menuhttp "github.com/rkurbanov/lounge-ops/internal/menu/infrastructure/http"
	menupg "github.com/rkurbanov/lounge-ops/internal/menu/infrastructure/postgres"
	"github.com/rkurbanov/lounge-ops/internal/order/application"
	orderhttp "github.com/rkurbanov/lounge-ops/internal/order/infrastructure/http"
	orderkafka "github.com/rkurbanov/lounge-ops/internal/order/infrastructure/kafka"
	orderpg "github.com/rkurbanov/lounge-ops/internal/order/infrastructure/postgres"
	"github.com/rkurbanov/lounge-ops/migrations"
	"github.com/rkurbanov/lounge-ops/pkg/logging"
	"github.com/rkurbanov/lounge-ops/pkg/outbox"
	"github.com/rkurbanov/lounge-ops/pkg/shutdown"
	"github.com/rkurbanov/lounge-ops/pkg/tracing"
)

func main() {
	cfg, err := config.Load("orders-api")
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

	if err := migrations.Up(cfg.DB.DSN()); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	writer := orderkafka.NewWriter(cfg.Kafka.Brokers)
	defer writer.Close()

	orderRepo := orderpg.NewRepository(log, pool)
	menuRepo := menupg.NewRepository(log, pool)

	store := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.Kafka.OrderTopic)
	relay := outbox.NewRelay(log, store, dispatch, "orders-api-relay")

	svc := application.NewService(log, orderRepo, menuRepo)
	resSvc := florapp.NewReservationService(log, floorpg.NewRepository(log, pool))

	orderHandler := orderhttp.NewHandler(log, svc)
	menuHandler := menuhttp.NewHandler(log, menuRepo)
	resHandler := floorhttp.NewReservationHandler(log, resSvc)

	r := chi.NewRouter()
	r.Mount("/", orderHandler.Routes())
	r.Mount("/catalog", menuHandler.Routes())
	r.Mount("/floor", resHandler.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
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
		log.Error("orders-api stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("orders-api shutdown complete")
}
