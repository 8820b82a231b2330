package config

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// Config holds all service configuration, read from the environment.
type Config struct {
	Port string

	DatabaseURL      string
	LocalDB          bool
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBConnectTimeout time.Duration

	JWTSecret   string
	JWTSecretID string
	ProjectID   string

	SettingsBackend    string // "postgres" or "firestore"
	SettingsCollection string
	AlertTopic         string
	AlertWebhookURL    string
	NotifyQueueSize    int
	FanoutBuffer       int
	StoreRetryMax      int
	StoreRetryBase     time.Duration
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration
	LogLevel           string
	LogFormat          string
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LocalDB:          getBool("LOCAL_DB", false),
		DBMaxOpenConns:   getInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:   getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnectTimeout: getDuration("DB_CONNECT_TIMEOUT", 60*time.Second),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTSecretID: os.Getenv("JWT_SECRET_ID"),
		ProjectID:   os.Getenv("GOOGLE_CLOUD_PROJECT"),

		SettingsBackend:    getenv("SETTINGS_BACKEND", "postgres"),
		SettingsCollection: getenv("FIRESTORE_COLLECTION_SETTINGS", "proctoring_settings"),
		AlertTopic:         os.Getenv("ALERT_TOPIC"),
		AlertWebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),
		NotifyQueueSize:    getInt("NOTIFY_QUEUE_SIZE", 256),
		FanoutBuffer:       getInt("FANOUT_BUFFER", 64),
		StoreRetryMax:      getInt("STORE_RETRY_MAX", 3),
		StoreRetryBase:     getDuration("STORE_RETRY_BASE", 50*time.Millisecond),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		SweepInterval:      getDuration("SWEEP_INTERVAL", time.Minute),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "text"),
	}
}

// DSN returns the Postgres connection string. DATABASE_URL wins; LOCAL_DB=true
// falls back to a local development database.
func (c Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.LocalDB {
		return fmt.Sprintf("host=localhost port=5432 user=postgres dbname=campus sslmode=disable connect_timeout=%d",
			int(c.DBConnectTimeout.Seconds())), nil
	}
	return "", fmt.Errorf("config: DATABASE_URL is not set and LOCAL_DB is not true")
}

// InitDB opens and pings the Postgres pool.
func InitDB(cfg Config) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	slog.Info("testing database connection", "local", cfg.LocalDB)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("database connected")
	return db, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
