package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parchi-health/parchi/internal/api"
	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/events"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
	"github.com/parchi-health/parchi/internal/store"
	"github.com/parchi-health/parchi/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("env", cfg.Env).WithField("interval", cfg.WorkerInterval.String()).
		Info("rollover-worker starting up")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("rollover-worker failed")
		os.Exit(1)
	}
	log.Info("rollover-worker stopped")
}

func run(cfg config.Config, log *logger.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(rootCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("store connection: %w", err)
	}
	defer st.Close()

	var publisher appointment.Publisher = events.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// The rollover path takes no locks; the status re-check in MarkPast keeps
	// it from clobbering a concurrent doctor update.
	svc := appointment.NewService(st, nil, cfg, log, appointment.WithPublisher(publisher))

	m := metrics.New("rollover-worker")
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsRouter(cfg, m, st),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server error")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	worker.NewRollover(svc, cfg.WorkerInterval, log, m).Run(rootCtx)
	return nil
}

func metricsRouter(cfg config.Config, m *metrics.Collector, st *store.Store) http.Handler {
	health := api.NewHealthHandler(cfg.Env, "",
		api.Dependency{Name: st.Driver, Pinger: st, Critical: true},
	)

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	return r
}
