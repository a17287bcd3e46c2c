package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func assertFieldExists(t *testing.T, fields []zap.Field, key, expected string) {
	t.Helper()
	for _, f := range fields {
		if f.Key == key {
			assert.Equal(t, expected, f.String)
			return
		}
	}
	t.Errorf("field %q not found", key)
}

func TestContextFields_Empty(t *testing.T) {
	fields := ContextFields(context.Background())
	assert.Empty(t, fields)
}

func TestContextFields_OTELTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "test-operation")
	defer span.End()

	fields := ContextFields(ctx)

	var hasTraceID, hasSpanID bool
	for _, f := range fields {
		if f.Key == "trace_id" {
			hasTraceID = true
			assert.NotEmpty(t, f.String)
		}
		if f.Key == "span_id" {
			hasSpanID = true
			assert.NotEmpty(t, f.String)
		}
	}
	assert.True(t, hasTraceID, "trace_id field missing from context fields")
	assert.True(t, hasSpanID, "span_id field missing from context fields")
}

func TestContextFields_Correlation(t *testing.T) {
	ctx := WithOwnerID(context.Background(), "owner-42")
	ctx = WithSessionID(ctx, "sess-123")
	ctx = WithActID(ctx, "act-7")
	ctx = WithRequestID(ctx, "req-9")

	fields := ContextFields(ctx)

	require.Len(t, fields, 4)
	assertFieldExists(t, fields, "owner.id", "owner-42")
	assertFieldExists(t, fields, "session.id", "sess-123")
	assertFieldExists(t, fields, "act.id", "act-7")
	assertFieldExists(t, fields, "request.id", "req-9")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, OwnerIDFromContext(ctx))
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, ActIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithOwnerID(ctx, "owner-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithActID(ctx, "act-1")
	ctx = WithRequestID(ctx, "req-1")

	assert.Equal(t, "owner-1", OwnerIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Equal(t, "act-1", ActIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestWithSessionID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"spaces", "sess 123"},
		{"path traversal", "../../etc/passwd"},
		{"too long", strings.Repeat("a", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				WithSessionID(context.Background(), tt.id)
			})
		})
	}
}

func TestWithOwnerID_Invalid(t *testing.T) {
	assert.Panics(t, func() {
		WithOwnerID(context.Background(), "owner@example.com")
	})
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("sess-1"))
	assert.True(t, ValidID("owner_42"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("sess 123"))
	assert.False(t, ValidID("../../etc/passwd"))
	assert.False(t, ValidID(strings.Repeat("a", 129)))
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	// Nop logger, must not panic
	logger.Info(context.Background(), "ignored")
}

func TestWithLogger_RoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	got := FromContext(ctx)
	assert.Same(t, tl.Logger, got)
}
