package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, Options{Enabled: false}, "labelage", "test"))

	_, span := Tracer("").Start(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	Shutdown(ctx)
}

func TestInit_EnabledWritesSpans(t *testing.T) {
	// Arrange
	ctx := context.Background()
	var buf bytes.Buffer
	require.NoError(t, Init(ctx, Options{Enabled: true, Writer: &buf}, "labelage", "test"))

	// Act
	_, span := Tracer("").Start(ctx, "labelage.test_span")
	span.End()
	Shutdown(ctx)

	// Assert
	assert.Contains(t, buf.String(), "labelage.test_span")
	require.NoError(t, Init(ctx, Options{Enabled: false}, "labelage", "test"))
}
