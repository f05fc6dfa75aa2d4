// Package main is the entrypoint for the GratefulTime API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gratefultime/journal-api/internal/apple"
	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/config"
	"github.com/gratefultime/journal-api/internal/handler"
	"github.com/gratefultime/journal-api/internal/metrics"
	"github.com/gratefultime/journal-api/internal/middleware"
	"github.com/gratefultime/journal-api/internal/ratelimit"
	"github.com/gratefultime/journal-api/internal/repository"
	"github.com/gratefultime/journal-api/internal/server"
	"github.com/gratefultime/journal-api/internal/service"
	"github.com/gratefultime/journal-api/internal/summary"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize rate limiter; a failed probe commits to local fallback.
	limiter := ratelimit.New(ctx, cfg.RedisURL, cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RedisProbeTimeout, logger)
	logger.Info("rate limiter ready", "mode", string(limiter.Mode()))

	// Initialize token service and identity verifier
	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}
	verifier := apple.NewVerifier(cfg.AppleKeysURL, cfg.AppleIssuer, cfg.AppleAudience, cfg.AppleFetchTimeout, logger)

	// Initialize services
	metricsRecorder := metrics.NewNoop()
	accountService := service.NewAccountService(repo, tokens, verifier, cfg.DevMode, metricsRecorder)
	entryService := service.NewEntryService(repo, repo)
	profileService := service.NewProfileService(repo)
	gemini := summary.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout)
	summaryService := service.NewSummaryService(repo, repo, gemini)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(repo, limiter)
	authHandler := handler.NewAuthHandler(accountService, logger)
	entryHandler := handler.NewEntryHandler(entryService, logger)
	userHandler := handler.NewUserHandler(profileService, logger)
	summaryHandler := handler.NewSummaryHandler(summaryService, logger)

	// Setup router
	r := setupRouter(routerDeps{
		health:  healthHandler,
		auth:    authHandler,
		entries: entryHandler,
		users:   userHandler,
		ai:      summaryHandler,
		tokens:  tokens,
		limiter: limiter,
		metrics: metricsRecorder,
		cfg:     cfg,
		logger:  logger,
	})

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	srv.OnShutdown("rate-limiter", func(ctx context.Context) error {
		return limiter.Close()
	})
	srv.OnShutdown("database", func(ctx context.Context) error {
		repo.Close()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
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
	switch level {
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

type routerDeps struct {
	health  *handler.HealthHandler
	auth    *handler.AuthHandler
	entries *handler.EntryHandler
	users   *handler.UserHandler
	ai      *handler.SummaryHandler
	tokens  *auth.TokenService
	limiter *ratelimit.Limiter
	metrics metrics.Recorder
	cfg     *config.Config
	logger  *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: deps.cfg.IsDevelopment(),
	}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = deps.cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	r.Use(middleware.MaxBodySize(deps.cfg.MaxRequestBodySize))

	// Per-caller quota. Signup, login and health stay outside the window.
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Logger:  deps.logger,
		Limiter: deps.limiter,
		Metrics: deps.metrics,
		Tokens:  deps.tokens,
		ExemptPaths: []string{
			"/",
			"/healthz",
			"/readyz",
			"/signup",
			"/login",
			"/apple-login",
		},
	}))

	// Public endpoints
	r.Get("/", handler.Hello)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Post("/signup", deps.auth.Signup)
	r.Post("/login", deps.auth.Login)
	r.Post("/apple-login", deps.auth.AppleLogin)

	// Authenticated endpoints
	authMw := middleware.Auth(middleware.AuthConfig{
		Logger:  deps.logger,
		Tokens:  deps.tokens,
		Metrics: deps.metrics,
	})

	r.Group(func(r chi.Router) {
		r.Use(authMw)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", deps.entries.List)
			r.Post("/", deps.entries.Create)
			r.Get("/days", deps.entries.Days)
			r.Get("/day", deps.entries.ByDay)
			r.Get("/{id}", deps.entries.Get)
			r.Delete("/{id}", deps.entries.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/info", deps.users.Info)
			r.Get("/unlocktime", deps.users.UnlockTime)
			r.Put("/unlocktime", deps.users.SetUnlockTime)
		})

		r.Get("/ai/monthlysummary", deps.ai.MonthlySummary)
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
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
