package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv" // loads .env in local runs

	"github.com/iliyamo/garage-parking/internal/config"     // Internal config loader
	"github.com/iliyamo/garage-parking/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/garage-parking/internal/garage"     // catalog bootstrap
	"github.com/iliyamo/garage-parking/internal/handler"    // HTTP handlers
	"github.com/iliyamo/garage-parking/internal/logging"    // zerolog wrapper
	"github.com/iliyamo/garage-parking/internal/parking"    // lifecycle core
	"github.com/iliyamo/garage-parking/internal/queue"      // ledger consumer
	"github.com/iliyamo/garage-parking/internal/repository" // store contracts
	"github.com/iliyamo/garage-parking/internal/repository/memory"
	"github.com/iliyamo/garage-parking/internal/router"    // Internal router setup
	"github.com/iliyamo/garage-parking/internal/service"   // session.closed publisher
	"github.com/iliyamo/garage-parking/internal/telemetry" // OTLP export
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.Load() // Load environment config
	logging.Init(cfg.IsDevelopment())
	log := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := config.LoadTelemetryConfig()
	if tcfg.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Settings{
			ServiceName:    tcfg.ServiceName,
			ServiceVersion: tcfg.ServiceVersion,
			Environment:    cfg.Env,
			Endpoint:       tcfg.Endpoint,
			MetricInterval: tcfg.MetricInterval,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize telemetry")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown telemetry")
			}
		}()
	}

	store, db := openStore(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	// Catalog bootstrap failures are not fatal; the store keeps whatever it
	// already had.
	gcfg := config.LoadGarageConfig()
	if gcfg.Enabled {
		client := garage.NewClient(gcfg.BaseURL, gcfg.Timeout)
		if _, err := garage.Bootstrap(ctx, client, garage.NewSynchronizer(store), gcfg); err != nil {
			log.Warn().Err(err).Str("base_url", gcfg.BaseURL).Msg("garage bootstrap failed, continuing with stored catalog")
		}
	}

	metrics, err := parking.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	var publisher parking.ClosedPublisher
	qcfg := config.LoadQueueConfig()
	if qcfg.Enabled {
		pub := service.NewSessionPublisher(qcfg.URL)
		defer pub.Close()
		publisher = pub

		if qcfg.ConsumerEnabled {
			ledger := queue.NewLedger(qcfg.LedgerPath)
			go func() {
				err := queue.StartLedgerConsumer(ctx, ledger, queue.ConsumerOptions{URL: qcfg.URL, Prefetch: qcfg.Prefetch})
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("ledger consumer stopped")
				}
			}()
		}
	}

	lifecycle := parking.NewService(store, publisher, metrics)
	lifecycle.MaxAttempts = cfg.MaxAttempts

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn().Msg("redis unavailable, rate limit and cache disabled")
	} else {
		defer rdb.Close()
	}

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}

	e := router.New(router.Options{
		ServiceName: tcfg.ServiceName,
		Health:      handler.NewHealthHandler(pinger),
		Webhook:     handler.NewWebhookHandler(lifecycle),
		Revenue:     handler.NewRevenueHandler(parking.NewRevenueService(store)),
		Redis:       rdb,
		RateLimit:   config.LoadRateLimitConfig(),
		Cache:       config.LoadCacheConfig(),
		RevenueAuth: cfg.RevenueAuth,
		JWTSecret:   cfg.JWTSecret,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server")
	}
}

// openStore returns the configured TxStore.  db is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config) (repository.TxStore, *sql.DB) {
	log := logging.Logger()
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return memory.New(), nil
	}

	db, err := database.Open(database.Settings{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	return repository.NewSQLStore(db), db
}
