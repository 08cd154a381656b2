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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/geoclinic/clinic-api/internal/config"
	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/notification"
	"github.com/geoclinic/clinic-api/internal/repository/postgres"
	"github.com/geoclinic/clinic-api/internal/worker"
	"github.com/geoclinic/clinic-api/pkg/logger"
	messagingRedis "github.com/geoclinic/clinic-api/pkg/messaging/redis"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZap(cfg.Log.Level, cfg.Log.Format, "outbox-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// The store and the broker log through zerolog.
	zl := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: "json"})

	if err := run(cfg, log, zl); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, zl zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	store := postgres.NewStore(db)

	senders := notification.Multi{notification.NewLogSender(log)}
	if cfg.SMTP.Host != "" {
		senders = append(senders, notification.NewEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if cfg.Redis.URL != "" {
		client, err := messagingRedis.NewClient(ctx, messagingRedis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		broker := messagingRedis.NewRedisBroker(client, zl)
		senders = append(senders, notification.NewBrokerSender(broker, cfg.Redis.Channel))
	}

	m := metrics.New("clinic_worker", prometheus.DefaultRegisterer)
	relay, err := worker.NewOutboxRelay(store, worker.Config{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log, m)
	if err != nil {
		return err
	}
	relay.Handle(model.EventPatientNotification, worker.PatientNotifications(senders))

	srv := healthServer(cfg.Outbox.HealthPort, store)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", zap.Error(err))
			stop()
		}
	}()

	log.Info("worker started", zap.Int("senders", len(senders)))
	relay.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(port int, store *postgres.Store) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
