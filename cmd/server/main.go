package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/fare"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/store"
	"github.com/example/ride-dispatch/internal/sweeper"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("dispatch-server", cfg.LogLevel)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var st store.RideStore
	if cfg.PGDSN != "" {
		ps, err := store.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_dispatch.sql")); err == nil {
				if _, err := ps.DB().Exec(string(b)); err != nil {
					logger.Error("migration exec failed", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_dispatch.sql")
				}
			}
		}
		st = ps
	} else {
		st = store.NewMemoryStore()
		logger.Warn("no PG_DSN set, ride records are in-memory only")
	}

	var idx presence.Index
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		idx = presence.NewRedisIndex(rc, cfg.RedisGeoKey)
	} else {
		idx = presence.NewMemoryIndex()
		logger.Warn("no REDIS_ADDR set, driver presence is in-memory only")
	}

	riders := registry.New()
	drivers := registry.New()
	notifier := notify.NewSocketNotifier(riders, drivers, logger)

	engine := dispatch.NewEngine(st, idx, notifier, logger)
	engine.DispatchRadiusMeters = cfg.DispatchRadiusMeters
	engine.NearbyRadiusMeters = cfg.NearbyRadiusMeters
	engine.RequestTTL = cfg.RequestTTL
	engine.DefaultSpeedMps = cfg.DefaultSpeedMps
	engine.Fare = fare.NewTableEstimator()
	if cfg.OSRMEndpoint != "" {
		engine.ETAClient = eta.NewCached(eta.NewOSRMClient(cfg.OSRMEndpoint), 30*time.Second)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		engine.Publisher = kp
	}
	if key := os.Getenv("STRIPE_API_KEY"); key != "" {
		engine.Payments = payments.NewStripeGateway(key)
	}

	lc := lifecycle.NewController(st, idx, notifier, logger)
	lc.AllowStartFromArrived = cfg.AllowStartFromArrived
	lc.Payments = engine.Payments

	srv := httpapi.NewServer(engine, lc, auth.NewManager(cfg.JWTSecret), riders, drivers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sw := sweeper.New(st, engine.Offers, notifier, logger, cfg.SweepInterval)
	go sw.Run(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
