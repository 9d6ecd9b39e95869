package loop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Terminal states recorded per event. Every event reaches exactly one of
// them; logged covers the full state machine, skipped covers a transport
// failure before action application.
const (
	StateLogged  = "logged"
	StateSkipped = "skipped"
)

// Record is one terminal log line per processed event.
type Record struct {
	Idx           int      `json:"idx"`
	EventID       string   `json:"event_id"`
	User          string   `json:"user"`
	Comment       string   `json:"comment"`
	TerminalState string   `json:"terminal_state"`
	Error         string   `json:"error,omitempty"`
	StudentPlan   string   `json:"student_plan,omitempty"`
	StudentFell   bool     `json:"student_fallback,omitempty"`
	ExpertVerdict string   `json:"expert_verdict,omitempty"`
	ExpertPlan    string   `json:"expert_plan,omitempty"`
	ExpertFell    bool     `json:"expert_fallback,omitempty"`
	ActionsApplied []string `json:"actions_applied,omitempty"`
	MemAdded       bool     `json:"mem_added"`
	RetrievedCount int      `json:"retrieved_count"`
	MemorySize     int      `json:"memory_size"`
	CumulativeCost float64  `json:"cumulative_cost_usd"`
	CumulativeCalls int     `json:"cumulative_calls"`
}

// ResultLog appends one JSON line per event. A nil ResultLog discards.
type ResultLog struct {
	f *os.File
}

// OpenResultLog opens path for appending, creating parent directories.
func OpenResultLog(path string) (*ResultLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating result log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	return &ResultLog{f: f}, nil
}

// Append writes one record as a JSON line.
func (l *ResultLog) Append(rec Record) error {
	if l == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling result record: %w", err)
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing result record: %w", err)
	}
	return nil
}

// Close flushes and closes the log file.
func (l *ResultLog) Close() error {
	if l == nil {
		return nil
	}
	return l.f.Close()
}

// ReadRecords loads all records from a result log, for eval tooling.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result log: %w", err)
	}
	var out []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parsing result log: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
