package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/background"
	"github.com/latchkey-auth/latchkey/internal/config"
	"github.com/latchkey-auth/latchkey/internal/database"
	"github.com/latchkey-auth/latchkey/internal/handlers"
	middlewareCustom "github.com/latchkey-auth/latchkey/internal/middleware"
	"github.com/latchkey-auth/latchkey/internal/repositories"
	"github.com/latchkey-auth/latchkey/internal/routes"
	"github.com/latchkey-auth/latchkey/internal/services"
	pkgauth "github.com/latchkey-auth/latchkey/pkg/auth"
	pkghttp "github.com/latchkey-auth/latchkey/pkg/http"
	pkglogger "github.com/latchkey-auth/latchkey/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
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

	// Rebuild the logger at the configured level. The bootstrap logger
	// above only exists so config errors are reported as JSON too.
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Secret-at-rest encryption
	cipher, err := auth.NewSecretCipher(cfg.TwoFactor.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize secret cipher", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	recordRepo := repositories.NewTwoFactorRepository(db.Pool, cipher)
	accountDirectory := repositories.NewAccountDirectory(db.Pool)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
	)

	// TOTP engine
	totpManager := auth.NewTOTPManager(auth.TOTPConfig{
		Issuer: cfg.TwoFactor.Issuer,
		Period: cfg.TwoFactor.Period,
		Skew:   cfg.TwoFactor.Skew,
		Digits: cfg.TwoFactor.Digits,
	})

	// Timing delay for verification security
	timingConfig := auth.TimingConfig{
		BaseDelayMs:   cfg.TwoFactor.BaseDelayMs,
		RandomDelayMs: cfg.TwoFactor.RandomDelayMs,
	}
	timingDelay := auth.NewTimingDelay(timingConfig)

	gate := auth.NewGate(pkgauth.NewBcryptVerifier(), totpManager, timingDelay)

	// Security notifications: SES when enabled, log-only otherwise
	var notifier services.SecurityNotifier
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize SES notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	} else {
		notifier = services.NewLogNotifier(logger)
	}

	// Initialize services
	twoFactorService := services.NewTwoFactorService(
		recordRepo,
		accountDirectory,
		totpManager,
		gate,
		notifier,
		logger,
	)

	// Audit logging and client IP resolution
	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, auditLogger, ipConfig, logger)

	// Background sweep of abandoned enrollments
	sweeper := background.NewSweeper(recordRepo, logger, cfg.TwoFactor.SweepInterval, cfg.TwoFactor.PendingTTL)

	// Setup CORS middleware
	corsConfig := middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.RateLimitByIP(middlewareCustom.DefaultServiceRateLimit()))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, twoFactorHandler, tokenManager)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweep task
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	// Start server
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

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// logLevel maps LOG_LEVEL onto slog levels. Unknown values fall back to info.
func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
