package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/donation-ledger/pkg/config"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry), "entry=%s", buf.String())
	return entry
}

func TestErrorCarriesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithStripeMode(ctx, "live")
	ctx = log.WithEmail(ctx, "Ana@example.org")
	log.Error(ctx, "boom", errors.New("stripe down"))

	entry := lastEntry(t, buf)
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "live", entry["stripe_mode"])
	assert.Equal(t, "A***@example.org", entry["email"])
	assert.Equal(t, "stripe down", entry["error"])
	assert.Contains(t, entry, "stack")
}

func TestFieldsDoNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithField(context.Background(), "job", "sync")
	_ = log.WithFields(parent, map[string]any{"attempt": 2})
	log.Info(parent, "tick")

	entry := lastEntry(t, buf)
	assert.Equal(t, "sync", entry["job"])
	assert.NotContains(t, entry, "attempt")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf, WarnStack: true}).Warn(context.Background(), "warny")
	assert.Contains(t, lastEntry(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "test", Output: buf}).Warn(context.Background(), "warny")
	assert.NotContains(t, lastEntry(t, buf), "stack")
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf}).Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	New(Options{ServiceName: "test", Level: "warn", Output: buf}).Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	New(Options{ServiceName: "test", Level: "debug", Output: buf}).Debug(context.Background(), "shown")
	assert.Equal(t, "shown", lastEntry(t, buf)["message"])
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig("api", config.AppConfig{LogLevel: "error", LogWarnStack: true, LogFormat: "Console"})
	assert.Equal(t, "api", opts.ServiceName)
	assert.Equal(t, "error", opts.Level)
	assert.True(t, opts.WarnStack)
	assert.True(t, opts.Console)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "d***@example.org", MaskEmail(" donor@example.org "))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@example.org"))
}
