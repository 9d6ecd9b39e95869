// Package costs accumulates per-model API spend across a run.
package costs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Call records a single API call.
type Call struct {
	Agent        string  `json:"agent"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ModelStats aggregates calls for one model.
type ModelStats struct {
	Calls   int     `json:"calls"`
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Stats is the run-level summary.
type Stats struct {
	TotalCalls     int                   `json:"total_calls"`
	TotalTokens    int                   `json:"total_tokens"`
	TotalCostUSD   float64               `json:"total_cost_usd"`
	AvgCostPerCall float64               `json:"avg_cost_per_call"`
	ByModel        map[string]ModelStats `json:"by_model"`
}

// Tracker accumulates call records. Safe for concurrent use, though the
// arbitration loop records strictly sequentially.
type Tracker struct {
	mu    sync.Mutex
	calls []Call
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record stores one call and returns its cost.
func (t *Tracker) Record(agent, model string, inputTokens, outputTokens int, costUSD float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{
		Agent:        agent,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
	})
	return costUSD
}

// TotalCost returns the cumulative cost in USD.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, c := range t.calls {
		total += c.CostUSD
	}
	return total
}

// TotalCalls returns the number of recorded calls.
func (t *Tracker) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Summary returns aggregate statistics.
func (t *Tracker) Summary() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{ByModel: map[string]ModelStats{}}
	for _, c := range t.calls {
		tokens := c.InputTokens + c.OutputTokens
		stats.TotalCalls++
		stats.TotalTokens += tokens
		stats.TotalCostUSD += c.CostUSD

		m := stats.ByModel[c.Model]
		m.Calls++
		m.Tokens += tokens
		m.CostUSD += c.CostUSD
		stats.ByModel[c.Model] = m
	}
	if stats.TotalCalls > 0 {
		stats.AvgCostPerCall = stats.TotalCostUSD / float64(stats.TotalCalls)
	}
	return stats
}

// Models returns the model names seen so far, sorted.
func (t *Tracker) Models() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range t.calls {
		seen[c.Model] = true
	}
	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Reset clears all recorded calls.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// WriteSummary writes the summary as indented JSON to path.
func (t *Tracker) WriteSummary(path string) error {
	data, err := json.MarshalIndent(t.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling cost summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cost summary: %w", err)
	}
	return nil
}
