package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/contextkeys"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("identity_id", 3).WithError(errors.New("boom")).Info("scope resolved")

	entry := logLine(t, &buf)
	assert.Equal(t, "scope resolved", entry["msg"])
	assert.Equal(t, float64(3), entry["identity_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("suppressed")
	assert.Zero(t, buf.Len())

	logger.Warnf("cache %s unavailable", "redis")
	entry := logLine(t, &buf)
	assert.Equal(t, "cache redis unavailable", entry["msg"])
	assert.Equal(t, "warning", entry["level"])
}

func TestWithErrorNil(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), base)
	ctx = contextkeys.WithRequestID(ctx, "req-9")
	ctx = contextkeys.WithIdentity(ctx, 7)

	FromContext(ctx).Info("handled")

	entry := logLine(t, &buf)
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, float64(7), entry["identity_id"])
}
