// Package doctor provides health checks for warden configuration and
// runtime, used by `warden doctor` before a first run.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/state"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // pass, warn, fail
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks to run.
type Options struct {
	// SkipNetwork skips the Ollama reachability probe (for CI/offline).
	SkipNetwork bool
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check WARDEN_* env vars and warden.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkStores(cfg)...)
		report.Checks = append(report.Checks, checkAgentBackend(cfg))
		report.Checks = append(report.Checks, checkDataset(cfg))
		if !opts.SkipNetwork && needsOllama(cfg) {
			report.Checks = append(report.Checks, checkOllama(ctx, cfg))
		}
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure the directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

// checkStores opens both SQLite databases, creating schemas as a side
// effect, so a broken disk or locked file surfaces here not mid-run.
func checkStores(cfg *config.Config) []CheckResult {
	var results []CheckResult

	tracker, err := state.NewTracker(cfg.StateDBPath())
	if err != nil {
		results = append(results, CheckResult{
			Name: "state_db", Status: "fail",
			Message: fmt.Sprintf("cannot open %s — %v", cfg.StateDBPath(), err),
		})
	} else {
		tracker.Close()
		results = append(results, CheckResult{
			Name: "state_db", Status: "pass",
			Message: cfg.StateDBPath(),
		})
	}

	retrieval, err := memory.Open(cfg.MemoryDBPath(), memory.NewTFIDFIndex(), cfg.MinSimilarity)
	if err != nil {
		results = append(results, CheckResult{
			Name: "memory_db", Status: "fail",
			Message: fmt.Sprintf("cannot open %s — %v", cfg.MemoryDBPath(), err),
		})
	} else {
		size := retrieval.Size()
		retrieval.Close()
		results = append(results, CheckResult{
			Name: "memory_db", Status: "pass",
			Message: fmt.Sprintf("%s (%d entries)", cfg.MemoryDBPath(), size),
		})
	}
	return results
}

func checkAgentBackend(cfg *config.Config) CheckResult {
	if cfg.AgentBackend == config.AgentBackendRules {
		return CheckResult{
			Name: "agent_backend", Status: "pass",
			Message: "rules backend (offline, no API key needed)",
		}
	}
	if needsAPIKey(cfg) && cfg.APIKey == "" {
		return CheckResult{
			Name: "agent_backend", Status: "fail",
			Message: fmt.Sprintf("llm backend with providers %s/%s but no API key",
				cfg.StudentProvider, cfg.ExpertProvider),
			Fix: "Set WARDEN_API_KEY or TOGETHER_API_KEY, or switch to the ollama provider",
		}
	}
	return CheckResult{
		Name: "agent_backend", Status: "pass",
		Message: fmt.Sprintf("llm backend, student=%s expert=%s", cfg.StudentModel, cfg.ExpertModel),
	}
}

func checkDataset(cfg *config.Config) CheckResult {
	if _, err := os.Stat(cfg.DatasetPath); err != nil {
		return CheckResult{
			Name: "dataset", Status: "warn",
			Message: fmt.Sprintf("%s not found", cfg.DatasetPath),
			Fix:     "Run `warden generate` to create a synthetic dataset",
		}
	}
	return CheckResult{Name: "dataset", Status: "pass", Message: cfg.DatasetPath}
}

func needsAPIKey(cfg *config.Config) bool {
	return cfg.StudentProvider != "ollama" || cfg.ExpertProvider != "ollama"
}

func needsOllama(cfg *config.Config) bool {
	return cfg.AgentBackend == config.AgentBackendLLM &&
		(cfg.StudentProvider == "ollama" || cfg.ExpertProvider == "ollama")
}

func checkOllama(ctx context.Context, cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", cfg.OllamaBaseURL+"/api/tags", nil)
	if err != nil {
		return CheckResult{Name: "ollama", Status: "fail", Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{
			Name: "ollama", Status: "fail",
			Message: fmt.Sprintf("%s unreachable — %v", cfg.OllamaBaseURL, err),
			Fix:     "Start Ollama or point ollama_base_url at a running instance",
		}
	}
	resp.Body.Close()
	return CheckResult{Name: "ollama", Status: "pass", Message: cfg.OllamaBaseURL}
}
