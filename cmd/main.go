package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"grievance/backend/internal/api/handler"
	"grievance/backend/internal/auth"
	"grievance/backend/internal/complaint"
	"grievance/backend/internal/config"
	"grievance/backend/internal/metrics"
	"grievance/backend/internal/ratelimit"
	"grievance/backend/internal/storage"
	"grievance/backend/internal/thread"
)

type dependencies struct {
	store  storage.Storage
	pinger handler.Pinger
	redis  *redis.Client
	close  func()
}

func setupDependencies(ctx context.Context, cfg *config.Config, log *logrus.Logger) dependencies {
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("failed to connect Redis")
		}
	}

	closeRedis := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}

	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		store := storage.NewMemoryStore()
		return dependencies{store: store, pinger: store, redis: rdb, close: closeRedis}
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect PostgreSQL")
	}
	if err := storage.Migrate(db); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	store := storage.NewStorageService(db, rdb)
	return dependencies{
		store:  store,
		pinger: store,
		redis:  rdb,
		close: func() {
			closeRedis()
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file loaded")
	}

	cfg, err := config.Load(os.Getenv("GRIEVANCE_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	log := config.NewLogger(cfg.Logging)
	log.Info("starting grievance backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := setupDependencies(ctx, cfg, log)
	defer deps.close()

	m := metrics.New()

	complaintOpts := []complaint.Option{
		complaint.WithLogger(log),
		complaint.WithMetrics(m),
	}
	if deps.redis != nil && cfg.Cache.PublicTTL > 0 {
		complaintOpts = append(complaintOpts, complaint.WithCache(storage.NewRedisCache(deps.redis, cfg.Cache.PublicTTL)))
	}
	complaints := complaint.NewService(deps.store, complaintOpts...)
	threads := thread.NewService(deps.store, thread.WithLogger(log), thread.WithMetrics(m))

	if !cfg.Auth.Enabled {
		log.Warn("authentication disabled; every request runs as the demo super_admin")
	}

	h := handler.NewHandler(complaints, threads, auth.New(cfg.Auth),
		handler.WithLogger(log),
		handler.WithMetrics(m),
		handler.WithPinger(deps.pinger),
		handler.WithLimiter(ratelimit.New(deps.redis, cfg.RateLimit.SubmitPerMinute)),
	)

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handler.NewRouter(h, cfg.CORS.AllowedOrigins)

	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
