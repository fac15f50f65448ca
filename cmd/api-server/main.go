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

	"github.com/redis/go-redis/v9"

	"github.com/parchi-health/parchi/internal/api"
	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/auth"
	"github.com/parchi-health/parchi/internal/blob"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/events"
	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
	"github.com/parchi-health/parchi/internal/notify"
	redisclient "github.com/parchi-health/parchi/internal/redis"
	"github.com/parchi-health/parchi/internal/store"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("env", cfg.Env).WithField("http_port", cfg.HTTPPort).
		WithField("store", cfg.StoreDriver).Info("api-server starting up")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("api-server failed")
		os.Exit(1)
	}
	log.Info("api-server stopped")
}

func run(cfg config.Config, log *logger.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(rootCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("store connection: %w", err)
	}
	defer st.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("error closing redis")
		}
	}()
	log.Info("connected to redis")

	blobs, err := openBlobStore(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	var notifier appointment.Notifier = notify.NewLogNotifier(log)
	if cfg.NotifyQueueName != "" {
		sqsNotifier, err := notify.NewSQSNotifier(rootCtx, cfg.NotifyQueueName)
		if err != nil {
			return fmt.Errorf("notification queue: %w", err)
		}
		notifier = sqsNotifier
		log.WithField("queue", cfg.NotifyQueueName).Info("notifications go to sqs")
	}

	var publisher appointment.Publisher = events.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.WithError(err).Warn("error closing kafka writer")
			}
		}()
		publisher = kafkaPublisher
		log.WithField("topic", cfg.KafkaTopic).Info("events go to kafka")
	}

	m := metrics.New("api-server")
	svc := appointment.NewService(st, redisclient.NewRedisLocker(rdb, cfg.LockTTL), cfg, log,
		appointment.WithBlobStore(blobs),
		appointment.WithNotifier(notifier),
		appointment.WithPublisher(publisher),
	)

	health := api.NewHealthHandler(cfg.Env, version,
		api.Dependency{Name: st.Driver, Pinger: st, Critical: true},
		api.Dependency{Name: "redis", Pinger: redisPinger(rdb)},
	)

	routerCfg := api.RouterConfig{
		Service:  svc,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Limiter:  redisclient.NewRateLimiter(rdb),
		Metrics:  m,
		Health:   health,
		Log:      log,
		Config:   cfg,
	}
	if disk, ok := blobs.(*blob.DiskStore); ok {
		routerCfg.UploadDir = disk.Dir()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (appointment.BlobStore, error) {
	if cfg.BlobDriver == config.BlobS3 {
		return blob.NewS3Store(ctx, cfg.S3Bucket, cfg.S3PublicBaseURL)
	}
	return blob.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
}

func redisPinger(rdb *redis.Client) api.PingFunc {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
