package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/memory"
)

var (
	memoryQuery string
	memoryK     int
	memoryLimit int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or query the retrieval memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "memory")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		var index memory.Index
		if cfg.MemoryBackend == config.MemoryBackendBM25 {
			index = memory.NewBM25Index()
		} else {
			index = memory.NewTFIDFIndex()
		}
		retrieval, err := memory.Open(cfg.MemoryDBPath(), index, cfg.MinSimilarity)
		if err != nil {
			return err
		}
		defer retrieval.Close()

		out := cmd.OutOrStdout()

		if memoryQuery != "" {
			k := memoryK
			if k <= 0 {
				k = cfg.TopK
			}
			results := retrieval.Query(ctx, memoryQuery, k)
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, res := range results {
				fmt.Fprintf(out, "#%d sim=%.3f plan=%s\n  %s\n", res.Seq, res.Similarity, res.Plan, res.Fingerprint)
			}
			return nil
		}

		entries, err := retrieval.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d entries\n", len(entries))
		if memoryLimit > 0 && len(entries) > memoryLimit {
			entries = entries[len(entries)-memoryLimit:]
		}
		for _, e := range entries {
			fmt.Fprintf(out, "#%d [%s] plan=%s\n  %s\n", e.Seq, e.Persona, e.Plan, e.Fingerprint)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.Flags().StringVar(&memoryQuery, "query", "", "fingerprint to search for")
	memoryCmd.Flags().IntVar(&memoryK, "k", 0, "number of neighbors (default: configured top_k)")
	memoryCmd.Flags().IntVar(&memoryLimit, "limit", 0, "show only the newest n entries")
}
