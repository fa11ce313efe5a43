package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/background"
	"github.com/agrirent/agrirent/internal/config"
	"github.com/agrirent/agrirent/internal/database"
	"github.com/agrirent/agrirent/internal/handlers"
	middlewareCustom "github.com/agrirent/agrirent/internal/middleware"
	"github.com/agrirent/agrirent/internal/repositories"
	"github.com/agrirent/agrirent/internal/routes"
	"github.com/agrirent/agrirent/internal/services"
	pkgauth "github.com/agrirent/agrirent/pkg/auth"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	pkglogger "github.com/agrirent/agrirent/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Server.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	accountRepo := repositories.NewAccountRepository(db)

	tokenManager := auth.NewTokenManager(auth.TokenConfig{
		SessionSecret:    cfg.Auth.JWTSecret,
		ActivationSecret: cfg.Auth.ActivationSecret,
		ResetSecret:      cfg.Auth.ResetSecret,
		SessionTTL:       cfg.Auth.SessionTTL.Duration(),
		ResetTTL:         cfg.Auth.ResetTTL.Duration(),
	})

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	mailer, err := newMailer(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	opts := services.AccountServiceOptions{
		Links: services.EmailLinks{
			Frontend:         cfg.URLs.Frontend,
			UserFrontend:     cfg.URLs.UserFrontend,
			ProviderFrontend: cfg.URLs.ProviderFrontend,
		},
		SendTimeout: cfg.Email.SendTimeout,
		MaxInFlight: cfg.Email.MaxInFlight,
		Timing:      timingDelay,
	}

	// Forgot-password throttling is optional
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, reset throttling fails open until it recovers", slog.Any("error", err))
		}
		cancel()

		opts.Limiter = services.NewRedisResetLimiter(redisClient, cfg.Redis.ResetRequestLimit, cfg.Redis.ResetRequestWindow)
	}

	hasher := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	accountService := services.NewAccountService(accountRepo, tokenManager, hasher, mailer, logger, auditLogger, opts)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(accountService, logger)
	accountHandler := handlers.NewAccountHandler(accountService, logger)

	cleanupManager := background.NewCleanupManager(accountService, logger, cfg.Auth.CleanupInterval)

	clientIPs := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	corsConfig := middlewareCustom.DefaultCORSConfig(middlewareCustom.NewOriginPolicy(cfg.URLs))

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, clientIPs))
	router.Use(middlewareCustom.CORS(corsConfig, logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))

	router.Get("/", handlers.Index)
	router.Get("/health", handlers.Health(db, logger))

	routes.RegisterRoutes(router, authHandler, accountHandler, tokenManager, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.RateLimitPerMinute,
		IPs:               clientIPs,
	})

	server := newHTTPServer(":"+cfg.Server.Port, router)

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let queued reset emails finish before the pool closes
	if err := accountService.Wait(); err != nil {
		logger.Warn("background deliveries ended with error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// requestTimeout cancels a handler's context. The server write deadline sits above it
// so the 503 from middleware.Timeout still reaches the client.
const requestTimeout = 15 * time.Second

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newMailer(cfg config.EmailConfig, logger *slog.Logger) (services.Mailer, error) {
	switch cfg.Provider {
	case "ses":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mailer, err := services.NewSESMailer(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
		if err != nil {
			return nil, err
		}
		return mailer, nil
	case "log":
		logger.Warn("EMAIL_PROVIDER=log, emails are written to the log and not delivered")
		return services.NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.Provider)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
