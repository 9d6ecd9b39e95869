package cmd

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/events"
)

var (
	generateNum    int
	generateSeed   int64
	generateOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic moderation dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "generate")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}

		output := generateOutput
		if output == "" {
			output = cfg.DatasetPath
		}

		evs := events.Generate(generateNum, rand.New(rand.NewSource(generateSeed)))
		if err := events.SaveDataset(output, evs); err != nil {
			return err
		}

		log.Info().Int("events", len(evs)).Str("path", output).Msg("dataset_written")
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events to %s\n", len(evs), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().IntVar(&generateNum, "num", 50, "number of events to generate")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 42, "random seed")
	generateCmd.Flags().StringVar(&generateOutput, "output", "", "output path (default: configured dataset_path)")
}
