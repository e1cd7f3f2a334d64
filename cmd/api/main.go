// Package main is the entrypoint for the shortclick API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shortclick/shortclick/internal/config"
	"github.com/shortclick/shortclick/internal/geo"
	"github.com/shortclick/shortclick/internal/handler"
	"github.com/shortclick/shortclick/internal/httpclient"
	"github.com/shortclick/shortclick/internal/kvstore"
	"github.com/shortclick/shortclick/internal/lock"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/ratelimit"
	"github.com/shortclick/shortclick/internal/repository"
	"github.com/shortclick/shortclick/internal/server"
	"github.com/shortclick/shortclick/internal/service"
	"github.com/shortclick/shortclick/internal/shortcode"
	"github.com/shortclick/shortclick/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	recorder := metrics.NewInMemory()
	clock := model.SystemClock{}

	// Telemetry: always mirrored to the structured log, remote when configured.
	sink := telemetry.Multi{telemetry.NewSlog(logger)}
	var remote *telemetry.Remote
	if cfg.TelemetryEnabled() {
		remote = telemetry.NewRemote(
			httpclient.New(cfg.TelemetryTimeout),
			cfg.TelemetryURL,
			cfg.TelemetryToken,
			cfg.TelemetryTimeout,
			logger,
			recorder,
		)
		sink = append(sink, remote)
		logger.Info("remote telemetry enabled", "url", cfg.TelemetryURL)
	}

	backend, redisClient, locker, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	if redisClient != nil && cfg.StoreBackend != config.BackendRedis {
		defer redisClient.Close()
	}

	store := repository.NewBlobRepository(backend, locker, logger,
		repository.WithKey(cfg.StoreURLsKey),
		repository.WithTelemetry(sink),
		repository.WithMetrics(recorder),
	)

	var locator geo.Locator = geo.Static(model.UnknownGeoLocation())
	if cfg.GeoEnabled {
		httpLocator := geo.NewHTTPLocator(httpclient.New(cfg.GeoTimeout), cfg.GeoEndpoint, logger, recorder)
		locator = geo.NewCachingLocator(httpLocator, cfg.GeoCacheTTL)
	}

	generator := shortcode.NewGenerator(shortcode.WithLength(cfg.ShortCodeLength))
	shortening := service.NewShorteningService(store, generator, clock, service.ShorteningConfig{
		BaseURL:                cfg.BaseURL,
		DefaultValidityMinutes: cfg.DefaultValidityMinutes,
		MaxBatchSize:           cfg.MaxBatchSize,
	}, logger, sink, recorder)
	resolver := service.NewResolver(store, locator, clock, cfg.GeoTimeout, logger, sink, recorder)
	sweeper := service.NewSweeper(store, clock, cfg.SweepInterval, cfg.SweepOnStart, logger)

	checks := map[string]handler.HealthChecker{"store": store}
	if redisClient != nil && cfg.StoreBackend != config.BackendRedis {
		checks["redis"] = redisPinger{redisClient}
	}

	router := handler.NewRouter(handler.RouterConfig{
		Handler:            handler.New(),
		Health:             handler.NewHealthHandler(checks),
		URLs:               handler.NewURLHandler(shortening, sweeper, cfg.BaseURL, logger),
		Redirect:           handler.NewRedirectHandler(resolver, logger),
		Metrics:            handler.NewMetricsHandler(recorder),
		APILimiter:         newLimiter(cfg.RateLimitAPIEnabled, redisClient, cfg.RateLimitAPIRPS, cfg.RateLimitAPIBurst),
		RedirectLimiter:    newLimiter(cfg.RateLimitRedirectEnabled, redisClient, cfg.RateLimitRedirectRPS, cfg.RateLimitRedirectBurst),
		IsDevelopment:      cfg.IsDevelopment(),
		CORSAllowedOrigins: cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Logger:             logger,
		Telemetry:          sink,
	})

	srv := server.New(router, server.Options{
		Addr:            fmt.Sprintf(":%d", cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, stopped last: telemetry outlives the sweeper.
	if remote != nil {
		srv.OnShutdown("telemetry", remote.Close)
	}

	go func() {
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("sweeper error", "error", err)
		}
	}()
	srv.OnShutdown("sweeper", sweeper.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"store", cfg.StoreBackend,
	)

	return srv.Run(ctx)
}

// openStore connects the configured blob backend and picks the write lock.
// The returned Redis client is non-nil whenever REDIS_URL is set, so it can
// back the lock and rate limiters even when records live in Postgres.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Backend, *redis.Client, lock.Locker, error) {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := kvstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			return nil, nil, nil, fmt.Errorf("redis: %s", sanitizeError(err, cfg.RedisURL))
		}
		redisClient = client
		logger.Info("connected to Redis")
	}

	var locker lock.Locker = lock.NewLocal()
	if redisClient != nil {
		locker = lock.NewRedis(redisClient, cfg.LockKey, cfg.LockTTL)
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		return kvstore.NewRedis(redisClient, ""), redisClient, locker, nil

	case config.BackendPostgres:
		pool, err := kvstore.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error(
				"failed to connect to database",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
				slog.String("database_url", redactURL(cfg.DatabaseURL)),
			)
			return nil, nil, nil, fmt.Errorf("postgres: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		backend, err := kvstore.NewPostgres(ctx, pool, cfg.StoreTable)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("connected to database")
		return backend, redisClient, locker, nil

	default:
		logger.Warn("using in-memory store, records are lost on restart")
		return kvstore.NewMemory(), redisClient, locker, nil
	}
}

// newLimiter returns a nil interface when limiting is disabled so the
// middleware passes requests through.
func newLimiter(enabled bool, client *redis.Client, rps, burst int) ratelimit.Limiter {
	if !enabled {
		return nil
	}
	cfg := ratelimit.Config{RatePerSecond: rps, Burst: burst}
	if client != nil {
		return ratelimit.NewRedis(client, cfg)
	}
	return ratelimit.NewMemory(cfg)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
