package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rs/zerolog/log"
)

var (
	metricsOnce   sync.Once
	costHistogram metric.Float64Histogram
	tokenCounter  metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("github.com/dativo-io/warden/internal/llm")

	var err error
	costHistogram, err = meter.Float64Histogram("warden.llm.cost.request",
		metric.WithDescription("Estimated cost of a single LLM request"),
		metric.WithUnit("USD"))
	if err != nil {
		log.Warn().Err(err).Msg("cost_histogram_init_failed")
	}

	tokenCounter, err = meter.Int64Counter("warden.llm.tokens",
		metric.WithDescription("Tokens consumed by LLM requests"),
		metric.WithUnit("{token}"))
	if err != nil {
		log.Warn().Err(err).Msg("token_counter_init_failed")
	}
}

// RecordUsageMetrics records cost and token metrics for one completed call.
// agent is the calling role ("student" or "expert").
func RecordUsageMetrics(ctx context.Context, agent string, provider Provider, resp *Response) {
	metricsOnce.Do(initMetrics)

	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("provider", provider.Name()),
		attribute.String("model", resp.Model),
	)
	if costHistogram != nil {
		costHistogram.Record(ctx, provider.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens), attrs)
	}
	if tokenCounter != nil {
		tokenCounter.Add(ctx, int64(resp.InputTokens), attrs,
			metric.WithAttributes(attribute.String("direction", "input")))
		tokenCounter.Add(ctx, int64(resp.OutputTokens), attrs,
			metric.WithAttributes(attribute.String("direction", "output")))
	}
}
