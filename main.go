package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"campus-portal/app/config"
	"campus-portal/app/database"
	"campus-portal/app/logging"
	"campus-portal/app/routes/auth"
	"campus-portal/app/routes/proctoring"
	"campus-portal/app/services"
	"campus-portal/app/services/fanout"
	"campus-portal/app/services/notify"
	ps "campus-portal/app/services/proctoring"
)

// customErrorHandler renders every unhandled error as the JSON envelope.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		slog.Error("unhandled request error", "path", c.Path(), "error", err)
		msg = "Internal server error"
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret, err := config.ResolveJWTSecret(ctx, cfg)
	switch {
	case err != nil && cfg.JWTSecretID != "":
		slog.Error("failed to load JWT secret", "error", err)
		os.Exit(1)
	case err != nil:
		slog.Warn("no JWT secret configured, using development secret", "error", err)
	default:
		auth.SetJWTSecret(secret)
	}

	// Storage: Postgres when configured, process memory otherwise
	var (
		db       *sql.DB
		store    ps.Store
		settings ps.SettingsSource
		health   pinger
	)
	if _, dsnErr := cfg.DSN(); dsnErr == nil {
		db, err = config.InitDB(cfg)
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.RunMigrations(db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		pg := database.NewProctoringStore(db)
		store, settings, health = pg, pg, pg
	} else {
		slog.Warn("no database configured, using in-memory store", "reason", dsnErr)
		mem := ps.NewMemoryStore()
		store, settings = mem, mem
	}

	if cfg.SettingsBackend == "firestore" {
		fs, err := database.NewFirestoreSettings(ctx, cfg.ProjectID, cfg.SettingsCollection)
		if err != nil {
			slog.Error("failed to initialize firestore settings", "error", err)
			os.Exit(1)
		}
		defer fs.Close()
		settings = fs
	}

	hub := fanout.New(fanout.WithBufferSize(cfg.FanoutBuffer))
	defer hub.Close()

	opts := []ps.Option{
		ps.WithSettings(settings),
		ps.WithPublisher(hub),
		ps.WithRetryPolicy(ps.RetryPolicy{
			MaxRetries: cfg.StoreRetryMax,
			BaseDelay:  cfg.StoreRetryBase,
			MaxDelay:   ps.DefaultRetryPolicy.MaxDelay,
		}),
	}
	if dispatcher := newNotifier(ctx, cfg); dispatcher != nil {
		defer dispatcher.Close()
		opts = append(opts, ps.WithNotifier(dispatcher))
	}
	svc := ps.NewService(store, opts...)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		AppName:      "campus-portal proctoring",
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if health != nil {
			pingCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := health.Ping(pingCtx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "database unavailable"})
			}
		}
		return c.JSON(fiber.Map{"success": true, "subscribers": hub.Subscribers()})
	})

	// Setup auth routes
	var users auth.Users
	if db != nil {
		users = database.NewUserStore(db)
	}
	auth.SetupAuthRoutes(app, users)

	// Setup proctoring routes
	proctoring.SetupProctoringRoutes(app, svc, hub)

	// Catch-all route for 404 errors (must be last)
	app.Use("*", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Route not found")
	})

	// Start background scheduler
	sweeperDone := services.StartScheduler(ctx, svc, cfg.SweepInterval, cfg.SessionIdleTimeout)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		// Open event streams never finish on their own.
		hub.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
	}
	stop()
	<-sweeperDone
}

// newNotifier builds the alert dispatcher from the configured senders, or
// returns nil when none is configured.
func newNotifier(ctx context.Context, cfg config.Config) *notify.Dispatcher {
	var senders []notify.Sender
	if cfg.AlertTopic != "" {
		p, err := notify.NewPubSub(ctx, cfg.ProjectID, cfg.AlertTopic)
		if err != nil {
			slog.Error("alert topic unavailable, pub/sub notifications disabled", "error", err)
		} else {
			senders = append(senders, p)
		}
	}
	if cfg.AlertWebhookURL != "" {
		senders = append(senders, notify.NewWebhook(cfg.AlertWebhookURL))
	}
	if len(senders) == 0 {
		slog.Info("no alert notification targets configured")
		return nil
	}
	return notify.NewDispatcher(notify.NewMulti(senders...), notify.WithQueueSize(cfg.NotifyQueueSize))
}
