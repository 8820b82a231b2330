package main

import (
	"log/slog"
	"os"

	"campus-portal/app/config"
	"campus-portal/app/database"
	"campus-portal/app/logging"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	slog.Info("running proctoring migrations")
	db, err := config.InitDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations completed successfully")
}
