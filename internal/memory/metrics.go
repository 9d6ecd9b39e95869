package memory

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	insertsTotal metric.Int64Counter
	queriesTotal metric.Int64Counter
	entriesGauge metric.Int64Gauge
)

func init() {
	meter := otel.Meter("github.com/dativo-io/warden/internal/memory")

	var err error
	insertsTotal, err = meter.Int64Counter("warden.memory.inserts",
		metric.WithDescription("Disagreement entries written to the retrieval memory"))
	if err != nil {
		log.Warn().Err(err).Msg("inserts_counter_init_failed")
	}
	queriesTotal, err = meter.Int64Counter("warden.memory.queries",
		metric.WithDescription("Similarity queries served by the retrieval memory"))
	if err != nil {
		log.Warn().Err(err).Msg("queries_counter_init_failed")
	}
	entriesGauge, err = meter.Int64Gauge("warden.memory.entries",
		metric.WithDescription("Current retrieval memory size"))
	if err != nil {
		log.Warn().Err(err).Msg("entries_gauge_init_failed")
	}
}

// recordInsert counts one memory write.
func recordInsert(ctx context.Context) {
	if insertsTotal != nil {
		insertsTotal.Add(ctx, 1)
	}
}

// recordQuery counts one similarity query.
func recordQuery(ctx context.Context) {
	if queriesTotal != nil {
		queriesTotal.Add(ctx, 1)
	}
}

// recordEntriesGauge sets warden.memory.entries to the current entry count.
func recordEntriesGauge(ctx context.Context, s *Store) {
	if entriesGauge == nil {
		return
	}
	count, err := s.Count(ctx)
	if err != nil {
		return
	}
	entriesGauge.Record(ctx, int64(count))
}
