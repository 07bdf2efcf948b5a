package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	assert.Equal(t, "abc", GetCorrelationID(ctx))

	generated := WithCorrelationID(context.Background(), "")
	assert.Len(t, GetCorrelationID(generated), 36)

	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestContextualLogger_Fields(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: DebugLevel, Format: "json", Output: "stdout"})
	require.NoError(t, err)
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithCorrelationID(context.Background(), "req-1")
	cl := logger.WithContext(ctx).
		WithFields(map[string]interface{}{"operation": "submit_profile"}).
		WithError(errors.New("boom"))
	cl.Warn("submission rejected")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["correlation_id"])
	assert.Equal(t, "submit_profile", line["operation"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "submission rejected", line["message"])

	// derived loggers do not leak fields into their parent
	parent := logger.WithContext(ctx)
	_ = parent.WithField("extra", 1)
	_, ok := parent.Fields()["extra"]
	assert.False(t, ok)
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: WarnLevel, Format: "text", Output: "stderr"})
	require.NoError(t, err)
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithContext(context.Background()).Info("hidden")
	assert.Zero(t, buf.Len())
	logger.WithContext(context.Background()).Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "nitematch", Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPostgresAttributes(t *testing.T) {
	attrs := PostgresAttributes("nitematch", "db", 5432)
	assert.Len(t, attrs, 4)
}
