package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/internal/metrics"
	"github.com/BaSui01/agentteam/types"
)

// ResilientClient 包装 Client：逐模型熔断、指标与 trace
type ResilientClient struct {
	inner   Client
	health  *ModelHealth
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewResilientClient 创建包装客户端，health/collector 可为 nil
func NewResilientClient(inner Client, health *ModelHealth, collector *metrics.Collector, logger *zap.Logger) *ResilientClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientClient{inner: inner, health: health, metrics: collector, logger: logger}
}

// Create implements Client.
func (c *ResilientClient) Create(ctx context.Context, req *CompletionRequest) (string, error) {
	ctx, span := otel.Tracer("agentteam/llm").Start(ctx, "llm.create")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model), attribute.Int("llm.messages", len(req.Messages)))

	start := time.Now()
	call := func() (string, error) { return c.inner.Create(ctx, req) }

	var (
		out string
		err error
	)
	if c.health != nil {
		out, err = c.health.Execute(req.Model, call)
	} else {
		out, err = call()
	}

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("llm call failed",
			zap.String("model", req.Model),
			zap.Bool("retryable", types.IsRetryable(err)),
			zap.Error(err))
	}
	c.metrics.RecordLLMRequest(req.Model, status, time.Since(start))
	return out, err
}

// Models implements Client.
func (c *ResilientClient) Models(ctx context.Context) ([]types.ModelInfo, error) {
	infos, err := c.inner.Models(ctx)
	if err != nil || c.health == nil {
		return infos, err
	}
	for i := range infos {
		infos[i].Healthy = c.health.Healthy(infos[i].Model)
	}
	return infos, nil
}
