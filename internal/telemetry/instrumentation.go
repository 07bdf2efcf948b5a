package telemetry

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// PostgresAttributes describes a Postgres peer for span attributes.
func PostgresAttributes(dbName, host string, port int) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		semconv.DBName(dbName),
		semconv.NetPeerName(host),
		semconv.NetPeerPort(port),
	}
}

// OpenInstrumentedDB opens a traced database handle and registers pool stats.
func OpenInstrumentedDB(driverName, dsn string, attrs []attribute.KeyValue) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dsn, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to open instrumented database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attrs...)); err != nil {
		GetGlobalLogger().WithError(err).Warn("Failed to register database stats")
	}

	return db, nil
}

// InstrumentRedisClient adds the OpenTelemetry tracing hook to client
func InstrumentRedisClient(client *redis.Client) {
	client.AddHook(redisotel.NewTracingHook())
}
