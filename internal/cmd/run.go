package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/agent"
	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/costs"
	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/llm"
	"github.com/dativo-io/warden/internal/loop"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/state"
)

var (
	runDataset   string
	runMaxEvents int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the arbitration loop over a dataset",
	Long: `Processes a JSON dataset of moderation events through the Student →
Expert → memory pipeline. SIGINT stops gracefully after the event in
flight; both stores are durable per event, so a crash loses at most one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "run")
		defer span.End()

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		if runDataset != "" {
			cfg.DatasetPath = runDataset
		}
		if runMaxEvents > 0 {
			cfg.MaxEvents = runMaxEvents
		}

		evs, err := events.LoadDataset(cfg.DatasetPath)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			return loop.ErrNoEvents
		}
		if cfg.MaxEvents > 0 && len(evs) > cfg.MaxEvents {
			evs = evs[:cfg.MaxEvents]
		}

		tracker, err := state.NewTracker(cfg.StateDBPath())
		if err != nil {
			return err
		}
		defer tracker.Close()

		retrieval, err := memory.Open(cfg.MemoryDBPath(), newIndex(cfg), cfg.MinSimilarity)
		if err != nil {
			return err
		}
		defer retrieval.Close()

		costTracker := costs.NewTracker()
		student, expert, err := buildAgents(cfg, costTracker)
		if err != nil {
			return err
		}

		results, err := loop.OpenResultLog(cfg.ResultsPath)
		if err != nil {
			return err
		}
		defer results.Close()

		log.Info().
			Str("dataset", cfg.DatasetPath).
			Int("events", len(evs)).
			Str("agent_backend", cfg.AgentBackend).
			Str("memory_backend", cfg.MemoryBackend).
			Int("memory_size", retrieval.Size()).
			Msg("run_started")

		l := loop.New(tracker, retrieval, student, expert, costTracker, results, loop.Options{
			TopK:       cfg.TopK,
			MemoryMode: cfg.MemoryMode,
			AuditEvery: cfg.AuditEvery,
		})
		summary, err := l.Run(ctx, evs)
		if err != nil {
			return fmt.Errorf("run aborted: %w", err)
		}

		if err := costTracker.WriteSummary(costsPath(cfg)); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Processed:      %d\n", summary.Processed)
		fmt.Fprintf(out, "Skipped:        %d\n", summary.Skipped)
		fmt.Fprintf(out, "Disagreements:  %d\n", summary.Disagreements)
		fmt.Fprintf(out, "Memory writes:  %d\n", summary.MemoryWrites)
		fmt.Fprintf(out, "Memory size:    %d\n", summary.MemorySize)
		fmt.Fprintf(out, "API calls:      %d\n", summary.TotalCalls)
		fmt.Fprintf(out, "Total cost:     $%.4f\n", summary.TotalCostUSD)
		return nil
	},
}

// newIndex builds the similarity index named by the config.
func newIndex(cfg *config.Config) memory.Index {
	if cfg.MemoryBackend == config.MemoryBackendBM25 {
		return memory.NewBM25Index()
	}
	return memory.NewTFIDFIndex()
}

// buildAgents wires the Student and Expert for the configured backend.
func buildAgents(cfg *config.Config, costTracker *costs.Tracker) (agent.Student, agent.Expert, error) {
	if cfg.AgentBackend == config.AgentBackendRules {
		return agent.NewRulesStudent(), agent.NewRulesExpert(nil), nil
	}

	opts := llm.Options{
		APIKey:            cfg.APIKey,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	studentProvider, err := llm.New(cfg.StudentProvider, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("student provider: %w", err)
	}
	expertProvider, err := llm.New(cfg.ExpertProvider, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("expert provider: %w", err)
	}

	student := agent.NewLLMStudent(studentProvider, agent.LLMConfig{
		Model:       cfg.StudentModel,
		Temperature: cfg.StudentTemp,
		MaxTokens:   cfg.StudentMaxTokens,
	}, costTracker)
	expert := agent.NewLLMExpert(expertProvider, agent.LLMConfig{
		Model:       cfg.ExpertModel,
		Temperature: cfg.ExpertTemp,
		MaxTokens:   cfg.ExpertMaxTokens,
	}, costTracker)
	return student, expert, nil
}

func costsPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "costs.json")
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "dataset path (overrides config)")
	runCmd.Flags().IntVar(&runMaxEvents, "max-events", 0, "stop after this many events")
}
