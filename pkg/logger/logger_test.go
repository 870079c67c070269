package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("progress"))

	log.Debug("hidden")
	log.Info("lesson completed", LessonKey("module-1-1-1"), XPAmount(100))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var e map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "lesson completed", e["message"])

	fields := e["fields"].(map[string]any)
	assert.Equal(t, "progress", fields["component"])
	assert.Equal(t, "module-1-1-1", fields["lesson_key"])
	assert.EqualValues(t, 100, fields["xp_amount"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Format: FormatText})

	log.Warn("origin failed", ContentPath("zh/Web3QuickStart/01_FirstWeb3Identity"), ContentTier("remote"))

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "content_path=zh/Web3QuickStart/01_FirstWeb3Identity")
	assert.Less(t, strings.Index(out, "content_path"), strings.Index(out, "content_tier"))
}

func TestLogger_Context(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
