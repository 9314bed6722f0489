package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContextFallsBack(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), base)

	t.Run("phase and project attributes", func(t *testing.T) {
		buf.Reset()
		opCtx := WithOperation(ctx, "phase:build", "app")
		FromContext(opCtx).Debug("hello")

		out := buf.String()
		require.Contains(t, out, "phase=phase:build")
		assert.Contains(t, out, "project=app")
	})

	t.Run("empty project is omitted", func(t *testing.T) {
		buf.Reset()
		opCtx := WithOperation(ctx, "phase:deploy", "")
		FromContext(opCtx).Debug("hello")

		out := buf.String()
		require.Contains(t, out, "phase=phase:deploy")
		assert.NotContains(t, out, "project=")
	})
}
