package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainHandler(t *testing.T, buf *bytes.Buffer, level slog.Level) *TerminalHandler {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	return newTerminalHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := plainHandler(t, &buf, slog.LevelDebug)

	ts := time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "server started", 0)
	r.AddAttrs(slog.String("addr", "0.0.0.0:8080"))

	require.NoError(t, h.Handle(context.Background(), r))
	assert.Equal(t, "10:30:45.123 INF server started addr=0.0.0.0:8080\n", buf.String())
}

func TestTerminalHandler_Levels(t *testing.T) {
	tests := []struct {
		level slog.Level
		label string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(plainHandler(t, &buf, slog.LevelDebug))
			logger.Log(context.Background(), tt.level, "msg")
			assert.Contains(t, buf.String(), " "+tt.label+" msg")
		})
	}
}

func TestTerminalHandler_Colour(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)
	h.color = true

	slog.New(h).Error("boom", "error", errors.New("disk full"))

	out := buf.String()
	assert.Contains(t, out, ansiRed+"ERR"+ansiReset)
	assert.Contains(t, out, ansiRed+"disk full"+ansiReset)
}

func TestTerminalHandler_NoColour(t *testing.T) {
	var buf bytes.Buffer
	slog.New(plainHandler(t, &buf, slog.LevelInfo)).Info("hello")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestTerminalHandler_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestTerminalHandler_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(plainHandler(t, &buf, slog.LevelInfo))

	logger.With(componentKey, "search").Info("query", "top_k", 9)
	logger.Info("inline", componentKey, "api")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF [search] query top_k=9")
	assert.Contains(t, lines[1], "INF [api] inline")
	assert.NotContains(t, buf.String(), "component=")
}

func TestTerminalHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(plainHandler(t, &buf, slog.LevelInfo)).With("run_id", "r1")

	logger.Info("done", "succeeded", 2)
	assert.Contains(t, buf.String(), "done run_id=r1 succeeded=2")
}

func TestTerminalHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(plainHandler(t, &buf, slog.LevelInfo))

	logger.With("a", 1).WithGroup("summary").With("b", 2).Info("msg", "c", 3)

	out := buf.String()
	assert.Contains(t, out, " a=1")
	assert.Contains(t, out, " summary.b=2")
	assert.Contains(t, out, " summary.c=3")
}

func TestTerminalHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	slog.New(plainHandler(t, &buf, slog.LevelInfo)).Info("msg", slog.Group("req", slog.String("method", "GET")))
	assert.Contains(t, buf.String(), " req.method=GET")
}

func TestTerminalHandler_EmptyGroup(t *testing.T) {
	h := plainHandler(t, &bytes.Buffer{}, slog.LevelInfo)
	assert.Same(t, h, h.WithGroup(""))
}

func TestFormatAttrValue(t *testing.T) {
	assert.Equal(t, "plain", formatAttrValue(slog.StringValue("plain")))
	assert.Equal(t, `"has space"`, formatAttrValue(slog.StringValue("has space")))
	assert.Equal(t, `""`, formatAttrValue(slog.StringValue("")))
	assert.Equal(t, "1.5s", formatAttrValue(slog.DurationValue(1500*time.Millisecond)))
	assert.Equal(t, "42", formatAttrValue(slog.IntValue(42)))
}
