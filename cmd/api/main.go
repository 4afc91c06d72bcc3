package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookpoint/internal/api"
	"bookpoint/internal/config"
	"bookpoint/internal/database"
	"bookpoint/internal/domain"
	"bookpoint/internal/events"
	"bookpoint/internal/google"
	"bookpoint/internal/logging"
	"bookpoint/internal/metrics"
	"bookpoint/internal/models"
	"bookpoint/internal/postgres"
	"bookpoint/internal/repository"
	"bookpoint/internal/service"
	"bookpoint/internal/tracing"
	"bookpoint/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	catalogRefreshInterval = 5 * time.Minute
	sheetsCacheInterval    = 10 * time.Minute
)

// store is what the API process needs from either database backend.
type store interface {
	domain.Repository
	worker.SyncQueue
	Close() error
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	repo, sqlite, err := openStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if sqlite != nil {
		backup := database.NewBackupService(sqlite, cfg.Backup, logging.Component(&logger, "backup"))
		go backup.Start(ctx)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	locker, limiter := initCoordination(cfg, redisClient, &logger)

	bus := events.NewEventBus()
	subscribeEventLog(bus, logging.Component(&logger, "events"))

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return fmt.Errorf("init events publisher: %w", err)
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	var syncWorker domain.SyncWorker
	if sw := initSyncWorker(ctx, cfg, repo, publisher, redisClient, &logger); sw != nil {
		go sw.Start(ctx)
		syncWorker = sw
	}

	svc, err := buildServices(ctx, cfg, repo, locker, limiter, bus, syncWorker, &logger)
	if err != nil {
		return err
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, svc, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// openStore returns the configured store, plus the SQLite handle when that
// backend is used so it can be backed up.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store, *database.DB, error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.Postgres, logging.Component(logger, "postgres"))
		if err != nil {
			logger.Error().Err(err).Msg("init postgres")
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCoordination picks the slot locker and commit limiter. With Redis they
// are shared across processes and fall back to memory while Redis is down.
func initCoordination(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (domain.SlotLocker, domain.RateLimiter) {
	memLocker := repository.NewMemoryLocker()
	memLimiter := repository.NewMemoryRateLimiter()
	if client == nil {
		return memLocker, memLimiter
	}

	coordLog := logging.Component(logger, "coordination")
	locker := repository.NewFailoverLocker(repository.NewRedisLocker(client, cfg.Booking.LockTTL()), memLocker, coordLog)
	limiter := repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(client), memLimiter, coordLog)
	return locker, limiter
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	for _, eventType := range []string{events.EventBookingCreated, events.EventBookingApproved, events.EventBookingCancelled} {
		bus.Subscribe(eventType, func(event *events.Event) error {
			logger.Info().Str("event_type", event.Type).RawJSON("payload", event.Payload).Msg("booking event")
			return nil
		})
	}
}

func initSyncWorker(
	ctx context.Context,
	cfg *config.Config,
	queue worker.SyncQueue,
	publisher events.Publisher,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SyncWorker {
	if !cfg.Sync.Enabled {
		return nil
	}

	var sinks []worker.Sink
	if sheets := initGoogleSheets(ctx, cfg, logger); sheets != nil {
		sinks = append(sinks, worker.NewSheetsSink(sheets))
	}
	if publisher != nil {
		sinks = append(sinks, worker.NewBrokerSink(publisher))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, worker.NewWebhookSink(cfg.Webhook, logging.Component(logger, "webhook")))
	}
	if len(sinks) == 0 {
		logger.Info().Msg("sync enabled but no sinks configured")
		return nil
	}

	poll := time.Duration(cfg.Sync.PollIntervalMS) * time.Millisecond
	sw := worker.NewSyncWorker(queue, sinks, redisClient, worker.PolicyFromConfig(cfg.Sync), poll, logging.Component(logger, "sync"))
	logger.Info().Strs("targets", sw.Targets()).Msg("sync worker configured")
	return sw
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsLog := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.BookingsSheetName,
		sheetsLog,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}
	go sheetsService.StartCacheRefresh(ctx, sheetsCacheInterval)

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func buildServices(
	ctx context.Context,
	cfg *config.Config,
	repo domain.Repository,
	locker domain.SlotLocker,
	limiter domain.RateLimiter,
	bus *events.EventBus,
	syncWorker domain.SyncWorker,
	logger *zerolog.Logger,
) (api.Services, error) {
	loc, err := cfg.Booking.Location()
	if err != nil {
		return api.Services{}, fmt.Errorf("booking timezone: %w", err)
	}

	fallback := models.BusinessHours{Start: cfg.Booking.BusinessHours.Start, End: cfg.Booking.BusinessHours.End}
	svcLog := logging.Component(logger, "service")
	hours := service.NewSettingsBusinessHours(repo, fallback, svcLog)
	engine := service.NewEngine(hours, service.Horizon{
		Location:   loc,
		MinAdvance: cfg.Booking.MinAdvance(),
		MaxDays:    cfg.Booking.MaxBookingDays,
	})

	bookings := service.NewBookingService(repo, locker, engine, bus, syncWorker, service.BookingOptions{
		CodeAttempts: cfg.Booking.CodeAttempts,
		LockTTL:      cfg.Booking.LockTTL(),
	}, svcLog)

	catalog := service.NewCatalogService(repo, svcLog)
	go refreshCatalog(ctx, catalog, svcLog)

	return api.Services{
		Slots:       service.NewSlotService(repo, engine, svcLog),
		Bookings:    bookings,
		Catalog:     catalog,
		Limiter:     limiter,
		CommitLimit: cfg.Booking.RateLimit,
	}, nil
}

// refreshCatalog reloads cached services so edits made by the seed command show up.
func refreshCatalog(ctx context.Context, catalog *service.CatalogService, logger *zerolog.Logger) {
	ticker := time.NewTicker(catalogRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := catalog.Refresh(ctx); err != nil {
				logger.Warn().Err(err).Msg("catalog refresh failed")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
