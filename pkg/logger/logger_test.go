package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: "json"})

	log.With(Component("workflow")).Info("transition applied",
		ApplicationID("app-1"),
		Status("submitted"),
		Err(errors.New("boom")),
	)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "transition applied", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "workflow", entry["component"])
	assert.Equal(t, "app-1", entry["application_id"])
	assert.Equal(t, "submitted", entry["status"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Info("ignored")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
