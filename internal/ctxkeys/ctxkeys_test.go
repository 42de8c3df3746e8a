package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := TraceID(ctx)
	assert.False(t, ok)

	ctx = WithTraceID(ctx, "t1")
	ctx = WithConvID(ctx, "c1")
	ctx = WithLLMModel(ctx, "gpt-4o")
	ctx = WithRequestID(ctx, "req-1")

	v, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", v)
	v, _ = ConvID(ctx)
	assert.Equal(t, "c1", v)
	v, _ = LLMModel(ctx)
	assert.Equal(t, "gpt-4o", v)
	v, _ = RequestID(ctx)
	assert.Equal(t, "req-1", v)

	_, ok = ConvID(WithConvID(context.Background(), ""))
	assert.False(t, ok)
}
