package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		level  string
		enable slog.Level
	}{
		{"debug level", "production", "debug", slog.LevelDebug},
		{"warn level", "production", "warn", slog.LevelWarn},
		{"default info", "production", "", slog.LevelInfo},
		{"development forces debug", "development", "error", slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.env, tt.level)
			assert.True(t, l.Enabled(ctx, tt.enable))
		})
	}
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, "production", "info")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	l.WithContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestHelpersEmitEventNames(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, "production", "info")

	l.DatabaseError("create_request", errors.New("boom"))
	l.WebhookRejected("10.0.0.9", "ip_not_allowed")

	out := buf.String()
	assert.Contains(t, out, `"msg":"database_error"`)
	assert.Contains(t, out, `"msg":"webhook_rejected"`)
}
