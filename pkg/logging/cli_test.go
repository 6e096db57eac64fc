package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewCLIHandler(&buf, level)), &buf
}

func TestCLIHandler_Colors(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger, string, ...any)
		color string
	}{
		{"info", (*slog.Logger).Info, colorGreen},
		{"warn", (*slog.Logger).Warn, colorYellow},
		{"error", (*slog.Logger).Error, colorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestLogger(slog.LevelInfo)
			tt.log(logger, "model trained")

			out := buf.String()
			assert.Contains(t, out, "model trained")
			assert.Contains(t, out, tt.color)
			assert.Contains(t, out, colorReset)
		})
	}
}

func TestCLIHandler_Level(t *testing.T) {
	tests := []struct {
		name    string
		handler slog.Level
		record  slog.Level
		logged  bool
	}{
		{"debug passes debug", slog.LevelDebug, slog.LevelDebug, true},
		{"info drops debug", slog.LevelInfo, slog.LevelDebug, false},
		{"info passes warn", slog.LevelInfo, slog.LevelWarn, true},
		{"error drops info", slog.LevelError, slog.LevelInfo, false},
		{"error passes error", slog.LevelError, slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestLogger(tt.handler)
			logger.Log(t.Context(), tt.record, "scored")
			assert.Equal(t, tt.logged, buf.Len() > 0)
		})
	}
}

func TestCLIHandler_Attrs(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelInfo)
	logger.With("model", "default").Info("trained", "trees", 100, "accuracy", 0.93)
	assert.Contains(t, buf.String(), "trained: model=default trees=100 accuracy=0.93")

	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "model=default")
	assert.NotContains(t, buf.String(), ":")

	h := NewCLIHandler(buf, slog.LevelInfo)
	assert.Same(t, h, h.WithAttrs(nil))
}

func TestCLIHandler_Groups(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"none", nil, "listening"},
		{"empty", []string{""}, "listening"},
		{"single", []string{"server"}, "[server] listening"},
		{"nested", []string{"server", "bulk"}, "[server.bulk] listening"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestLogger(slog.LevelInfo)
			for _, g := range tt.groups {
				logger = logger.WithGroup(g)
			}
			logger.Info("listening")
			assert.Contains(t, buf.String(), colorGreen+tt.want+colorReset)
		})
	}
}

func TestSetDefaultCLILogger(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	SetDefaultCLILogger("warn")

	h, ok := slog.Default().Handler().(*CLIHandler)
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, h.level)
}

func TestNewServerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewServerLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "port", 8080)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"port":8080`)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":     slog.LevelDebug,
		"DEBUG":     slog.LevelDebug,
		"  debug  ": slog.LevelDebug,
		"info":      slog.LevelInfo,
		"warn":      slog.LevelWarn,
		"warning":   slog.LevelWarn,
		"error":     slog.LevelError,
		"verbose":   slog.LevelInfo,
		"":          slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}
