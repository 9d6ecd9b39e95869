package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/loop"
)

var evalResults string

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a result log",
	Long: `Reads the JSONL result log from a run and reports the disagreement
rate and failure counts. Disagreement is recomputed from the logged
canonical plans; the Expert's verdict field is ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "eval")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		path := evalResults
		if path == "" {
			path = cfg.ResultsPath
		}

		records, err := loop.ReadRecords(path)
		if err != nil {
			return err
		}

		var logged, skipped, memWrites, fallbacks int
		for _, rec := range records {
			switch rec.TerminalState {
			case loop.StateLogged:
				logged++
			case loop.StateSkipped:
				skipped++
			}
			if rec.MemAdded {
				memWrites++
			}
			if rec.StudentFell || rec.ExpertFell {
				fallbacks++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Records:           %d\n", len(records))
		fmt.Fprintf(out, "Logged:            %d\n", logged)
		fmt.Fprintf(out, "Skipped:           %d\n", skipped)
		fmt.Fprintf(out, "Memory writes:     %d\n", memWrites)
		fmt.Fprintf(out, "Schema fallbacks:  %d\n", fallbacks)
		fmt.Fprintf(out, "Disagreement rate: %.1f%%\n", 100*loop.DisagreementRate(records, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalResults, "results", "", "result log path (default: configured results_path)")
}
