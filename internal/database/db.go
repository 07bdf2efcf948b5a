package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("record not found")

type DB struct {
	*sql.DB
}

type Config struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	Instrumented bool
}

// DSN renders the lib/pq keyword connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// NewConnection opens the pool, optionally wrapped with OpenTelemetry
// tracing, and pings it.
func NewConnection(ctx context.Context, config Config) (*DB, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"host":         config.Host,
		"port":         config.Port,
		"database":     config.DBName,
		"ssl_mode":     config.SSLMode,
		"instrumented": config.Instrumented,
		"operation":    "database_connection",
	})

	logger.Info("Establishing database connection")

	var (
		db  *sql.DB
		err error
	)
	if config.Instrumented {
		port, _ := strconv.Atoi(config.Port)
		db, err = telemetry.OpenInstrumentedDB("postgres", config.DSN(),
			telemetry.PostgresAttributes(config.DBName, config.Host, port))
	} else {
		db, err = sql.Open("postgres", config.DSN())
	}
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) Health(ctx context.Context) error {
	err := db.PingContext(ctx)
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "database_health_check",
		}).WithError(err).Error("Database health check failed")
	}
	return err
}

// WithTransaction runs fn in a transaction, committing when fn returns nil
// and rolling back otherwise. Panics roll back and propagate.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "database_transaction",
	})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Transaction panicked, rolling back")
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			logger.WithError(err).Debug("Transaction failed, rolling back")
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			logger.WithError(err).Error("Failed to commit transaction")
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	return fn(tx)
}
