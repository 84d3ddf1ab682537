package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dours-d/D2C/internal/adapters/bank"
	"github.com/Dours-d/D2C/internal/adapters/events"
	"github.com/Dours-d/D2C/internal/adapters/httpjson"
	"github.com/Dours-d/D2C/internal/adapters/lock"
	"github.com/Dours-d/D2C/internal/adapters/p2p"
	"github.com/Dours-d/D2C/internal/adapters/simplex"
	"github.com/Dours-d/D2C/internal/adapters/tron"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/core/services"
	"github.com/Dours-d/D2C/internal/handlers"
	"github.com/Dours-d/D2C/internal/metrics"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/Dours-d/D2C/internal/repositories/database/pgsql"
	"github.com/Dours-d/D2C/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// @title Donation Settlement API
// @version 1.0
// @description Batches donations, converts them to USDT and settles them on TRON.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		return err
	}
	defer database.ClosePgxPool(dbPool)

	if err := runMigrations(cfg.DatabaseURL, logger); err != nil {
		return err
	}

	chain, err := tron.NewGateway(cfg.Tron)
	if err != nil {
		return err
	}
	defer chain.Close()

	publisher, closePublisher, err := newEventPublisher(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	locker, closeLocker, err := newTxLocker(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLocker()

	httpOpt := httpjson.WithHTTPClient(&http.Client{Timeout: cfg.ExternalCallTimeout})
	gw := services.SettlementGateways{
		Payments: simplex.NewGateway(cfg.Simplex, httpOpt),
		Chain:    chain,
	}
	// Optional routes stay nil interfaces when not configured so the strategy skips them.
	if cfg.Bank.APIURL != "" {
		gw.Bank = bank.NewGateway(cfg.Bank, httpOpt)
	}
	if cfg.P2P.APIURL != "" {
		gw.P2P = p2p.NewGateway(cfg.P2P, httpOpt)
	}

	container, workers := services.NewServiceContainer(cfg, pgsql.NewRepositoryProvider(dbPool), services.Dependencies{
		Gateways: gw,
		Events:   publisher,
		Locker:   locker,
		Metrics:  metrics.NewSettlement(),
	})

	webhookLimiter, err := middleware.NewMemoryLimiter(cfg.WebhookRateLimit)
	if err != nil {
		return err
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if err := r.SetTrustedProxies(nil); err != nil {
		return err
	}

	handlers.RegisterRoutes(r, cfg, container,
		handlers.WithHealthCheck(dbPool.Ping),
		handlers.WithWebhookLimiter(webhookLimiter),
		handlers.WithMetricsHandler(promhttp.Handler()),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ExternalCallTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(workers.Monitor.Run(gctx))
	})
	if cfg.CycleRunnerEnabled {
		g.Go(func() error {
			return ignoreCancel(workers.CycleRunner.Run(gctx))
		})
	}
	g.Go(func() error {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) (gateways.EventPublisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set. Settlement events are only logged.")
		return events.NewLogPublisher(logger), func() {}, nil
	}
	p, err := events.NewKafkaPublisher(cfg)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Error("Failed to close event producer", slog.String("error", err.Error()))
		}
	}, nil
}

func newTxLocker(ctx context.Context, cfg config.RedisConfig) (gateways.TxLocker, func(), error) {
	if cfg.Addr == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, cfg.Namespace), func() { _ = client.Close() }, nil
}

func runMigrations(databaseURL string, logger *slog.Logger) error {
	logger.Info("Running database migrations...")
	// Using pgx/v5/stdlib driver to be compatible with the main pool
	migrationDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return err
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		return errors.Join(sourceErr, dbErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}
