// Package main is the entry point for xorc-gateway, the public HTTPS
// ingress that authenticates SDK event batches, resolves stable device
// identities and forwards the batches to the Kafka event log and the
// RabbitMQ delivery exchange.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/xray-tech/xorc-gateway/internal/bus"
	"github.com/xray-tech/xorc-gateway/internal/config"
	"github.com/xray-tech/xorc-gateway/internal/cors"
	"github.com/xray-tech/xorc-gateway/internal/crypto"
	"github.com/xray-tech/xorc-gateway/internal/geo"
	"github.com/xray-tech/xorc-gateway/internal/handler"
	"github.com/xray-tech/xorc-gateway/internal/identity"
	"github.com/xray-tech/xorc-gateway/internal/registry"
	"github.com/xray-tech/xorc-gateway/internal/service"
	"github.com/xray-tech/xorc-gateway/internal/telemetry"
	"github.com/xray-tech/xorc-gateway/internal/wire"
)

func main() {
	// ── Structured Logger ──────────────────────────────────────────────────
	env := config.Env()

	var logger *zap.Logger
	if env == config.EnvDevelopment && os.Getenv("LOG_FORMAT") != "json" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	// ── Configuration ──────────────────────────────────────────────────────
	configPath := os.Getenv("CONFIG")
	if configPath == "" {
		configPath = "config/config.toml"
	}

	cfg, err := config.Load(configPath, env)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded",
		zap.String("path", configPath),
		zap.String("env", env),
		zap.String("process", cfg.Gateway.ProcessNamePrefix))

	if cfg.Gateway.Threads > 0 {
		runtime.GOMAXPROCS(cfg.Gateway.Threads)
	}

	// ── OpenTelemetry Tracer ───────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), "xorc-gateway", otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			logger.Info("OTel tracer initialized", zap.String("endpoint", otelEndpoint))
		}
	}

	// ── Vault Secret Loading ───────────────────────────────────────────────
	// Env vars win; Vault fills the gaps when VAULT_ADDR is set.
	secrets, err := config.LoadVaultSecrets()
	if err != nil {
		logger.Fatal("failed to load secrets from Vault", zap.Error(err))
	}
	secretOrEnv := func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return secrets[key]
	}
	if uri := secretOrEnv("REGISTRY_URI"); uri != "" {
		cfg.Registry.URI = uri
	}
	if url := secretOrEnv("IDENTITY_URL"); url != "" {
		cfg.Identity.URL = url
	}
	if password := secretOrEnv("RABBITMQ_PASSWORD"); password != "" {
		cfg.RabbitMQ.Password = password
	}

	// ── Cookie Cipher ──────────────────────────────────────────────────────
	var secret []byte
	if encoded := secretOrEnv("SECRET"); encoded != "" {
		secret, err = crypto.DecodeSecret(encoded)
		if err != nil {
			logger.Fatal("invalid SECRET", zap.Error(err))
		}
	} else if env == config.EnvDevelopment {
		logger.Warn("SECRET not set, using the development key")
		secret = crypto.DevSecret()
	} else {
		logger.Fatal("SECRET is required", zap.String("env", env))
	}

	cipher, err := crypto.NewCipher(secret)
	if err != nil {
		logger.Fatal("failed to initialize cookie cipher", zap.Error(err))
	}

	// ── GeoIP ──────────────────────────────────────────────────────────────
	var countries geo.Resolver = geo.Noop{}
	if path := os.Getenv("GEOIP"); path != "" {
		maxmind, err := geo.Open(path)
		if err != nil {
			logger.Fatal("failed to open GeoIP database", zap.Error(err))
		}
		defer maxmind.Close()
		countries = maxmind
		logger.Info("GeoIP database loaded", zap.String("path", path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Application Registry ───────────────────────────────────────────────
	var loader registry.Loader
	if cfg.Registry.ManageApps && cfg.Registry.URI != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Registry.URI)
		if err != nil {
			logger.Fatal("failed to parse registry.uri", zap.Error(err))
		}
		poolCfg.MaxConns = cfg.Registry.PoolSize

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal("registry database connection failed", zap.Error(err))
		}
		defer pool.Close()

		loader = registry.NewPostgresLoader(pool)
		logger.Info("application registry backed by postgres")
	} else {
		loader = registry.NewStaticLoader(cfg.TestApps)
		logger.Warn("application registry backed by config-file test apps",
			zap.Int("apps", len(cfg.TestApps)))
	}

	reg := registry.New(registry.Options{
		AllowEmptySignature: cfg.Gateway.AllowEmptySignature,
		RequireToken:        cfg.Gateway.RequireToken,
		DefaultToken:        cfg.Gateway.DefaultToken,
	}, logger)

	refresher := registry.NewRefresher(reg, loader, cfg.Registry.RefreshInterval, logger)
	if err := refresher.LoadOnce(ctx); err != nil {
		logger.Fatal("initial application load failed", zap.Error(err))
	}
	go refresher.Run(ctx)

	// ── Identity Store ─────────────────────────────────────────────────────
	redisOpts, err := redis.ParseURL(cfg.Identity.URL)
	if err != nil {
		logger.Fatal("failed to parse identity.url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("identity store connection failed", zap.Error(err))
	}
	logger.Info("identity store connected", zap.String("addr", redisOpts.Addr))

	store := identity.NewRedisStore(redisClient, cfg.Identity.Attempts, logger)
	resolver := identity.NewResolver(store, cipher, logger)

	// ── Buses ──────────────────────────────────────────────────────────────
	kafka, err := bus.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Fatal("kafka connection failed", zap.Error(err))
	}
	defer kafka.Close()
	logger.Info("kafka producer ready",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))

	rabbit, err := bus.NewRabbitMQ(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		logger.Fatal("rabbitmq connection failed", zap.Error(err))
	}
	defer rabbit.Close()
	logger.Info("rabbitmq publisher ready", zap.String("exchange", cfg.RabbitMQ.Exchange))

	publisher := bus.NewDual(kafka, rabbit, cfg.Bus.PublishTimeout, cfg.Bus.RequireBoth, logger)

	// ── HTTP Server ────────────────────────────────────────────────────────
	corsPolicy := cors.New(cfg.CORS, cfg.Origins)
	encoder := wire.NewEncoder(cfg.Events, countries, logger)

	svc := service.NewIngestService(
		reg, resolver, encoder, publisher, corsPolicy, cipher,
		cfg.Events.RegisterName, cfg.Gateway.DefaultToken, logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("xorc-gateway"))
	e.Use(middleware.Recover())

	handler.NewSDKHandler(svc, corsPolicy, logger).Register(e, cfg.Gateway.IngestPath)

	go func() {
		logger.Info("gateway listening", zap.String("address", cfg.Gateway.ListenAddress))
		if err := e.Start(cfg.Gateway.ListenAddress); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	// ── Graceful Shutdown ──────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("gateway shut down cleanly")
}
