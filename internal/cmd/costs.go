package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/costs"
)

var costsJSON bool

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show API spend from the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "costs")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		data, err := os.ReadFile(costsPath(cfg))
		if err != nil {
			return fmt.Errorf("no cost summary yet, run `warden run` first: %w", err)
		}

		out := cmd.OutOrStdout()
		if costsJSON {
			fmt.Fprintln(out, string(data))
			return nil
		}

		var stats costs.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			return fmt.Errorf("parsing cost summary: %w", err)
		}

		fmt.Fprintf(out, "Total calls:  %d\n", stats.TotalCalls)
		fmt.Fprintf(out, "Total tokens: %d\n", stats.TotalTokens)
		fmt.Fprintf(out, "Total cost:   $%.4f\n", stats.TotalCostUSD)
		if stats.TotalCalls > 0 {
			fmt.Fprintf(out, "Avg per call: $%.6f\n", stats.AvgCostPerCall)
		}
		if len(stats.ByModel) > 0 {
			models := make([]string, 0, len(stats.ByModel))
			for m := range stats.ByModel {
				models = append(models, m)
			}
			sort.Strings(models)
			fmt.Fprintln(out, "By model:")
			for _, m := range models {
				s := stats.ByModel[m]
				fmt.Fprintf(out, "  %-44s %4d calls %8d tokens  $%.4f\n", m, s.Calls, s.Tokens, s.CostUSD)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(costsCmd)
	costsCmd.Flags().BoolVar(&costsJSON, "json", false, "print the raw JSON summary")
}
