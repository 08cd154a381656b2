package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/geoclinic/clinic-api/internal/config"
	analyticsHandler "github.com/geoclinic/clinic-api/internal/handler/analytics"
	appointmentHandler "github.com/geoclinic/clinic-api/internal/handler/appointment"
	auditHandler "github.com/geoclinic/clinic-api/internal/handler/audit"
	authHandler "github.com/geoclinic/clinic-api/internal/handler/auth"
	doctorHandler "github.com/geoclinic/clinic-api/internal/handler/doctor"
	"github.com/geoclinic/clinic-api/internal/handler/health"
	patientHandler "github.com/geoclinic/clinic-api/internal/handler/patient"
	"github.com/geoclinic/clinic-api/internal/lock"
	"github.com/geoclinic/clinic-api/internal/middleware"
	"github.com/geoclinic/clinic-api/internal/repository/postgres"
	"github.com/geoclinic/clinic-api/internal/router"
	analyticsService "github.com/geoclinic/clinic-api/internal/service/analytics"
	appointmentService "github.com/geoclinic/clinic-api/internal/service/appointment"
	auditService "github.com/geoclinic/clinic-api/internal/service/audit"
	authService "github.com/geoclinic/clinic-api/internal/service/auth"
	doctorService "github.com/geoclinic/clinic-api/internal/service/doctor"
	eventService "github.com/geoclinic/clinic-api/internal/service/event"
	patientService "github.com/geoclinic/clinic-api/internal/service/patient"
	"github.com/geoclinic/clinic-api/internal/spatial"
	"github.com/geoclinic/clinic-api/pkg/auth"
	"github.com/geoclinic/clinic-api/pkg/logger"
	messagingRedis "github.com/geoclinic/clinic-api/pkg/messaging/redis"
	"github.com/geoclinic/clinic-api/pkg/metrics"
	"github.com/geoclinic/clinic-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db)

	// Same-patient bookings are serialized across replicas through Redis;
	// without it the lock only covers this process.
	var (
		locker      lock.Locker
		redisClient *goredis.Client
	)
	if cfg.Redis.URL != "" {
		redisClient, err = messagingRedis.NewClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func(c *goredis.Client) { _ = c.Close() }(redisClient)
		locker = lock.NewRedisLocker(redisClient, cfg.Booking.LockTTL)
	} else {
		log.Warn().Msg("redis not configured, using process-local booking lock")
		locker = lock.NewLocalLocker(cfg.Booking.LockTTL)
	}

	m := metrics.New("clinic", prometheus.DefaultRegisterer)

	indexer, err := spatial.NewIndexer(cfg.Spatial.Resolution)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid spatial resolution")
	}

	dispatcher := eventService.NewDispatcher(appLogger, m)
	eventService.Register(dispatcher, appLogger)
	dispatcher.Freeze()

	auditor := auditService.NewService(store)
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	authSvc := authService.NewService(store, security.NewBcryptHasher(bcrypt.DefaultCost), jwtSvc, auditor, appLogger)
	patientSvc := patientService.NewService(store, indexer, auditor, appLogger)
	doctorSvc := doctorService.NewService(store, auditor)
	appointmentSvc := appointmentService.NewService(store, auditor, dispatcher, locker, m, appLogger)
	analyticsSvc := analyticsService.NewService(store, analyticsService.Config{
		CacheTTL:        cfg.Analytics.CacheTTL,
		CleanupInterval: cfg.Analytics.CleanupInterval,
		MaxRing:         cfg.Spatial.MaxRing,
	}, m)
	if redisClient != nil {
		broker := messagingRedis.NewRedisBroker(redisClient, appLogger)
		if err := analyticsSvc.InvalidateOn(ctx, broker, cfg.Redis.Channel); err != nil {
			log.Warn().Err(err).Msg("analytics cache invalidation disabled")
		}
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		health.NewHandler(store),
		[]router.Handler{authHandler.NewHandler(authSvc)},
		[]router.Handler{
			patientHandler.NewHandler(patientSvc),
			doctorHandler.NewHandler(doctorSvc),
			appointmentHandler.NewHandler(appointmentSvc),
			analyticsHandler.NewHandler(analyticsSvc),
			auditHandler.NewHandler(auditor),
		},
		m,
		router.Config{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

func redisConfig(c config.RedisConfig) messagingRedis.Config {
	return messagingRedis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
