package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/doctor"
)

var (
	doctorJSON    bool
	doctorOffline bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and runtime health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "doctor")
		defer span.End()

		report := doctor.Run(ctx, doctor.Options{SkipNetwork: doctorOffline})

		out := cmd.OutOrStdout()
		if doctorJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		} else {
			for _, c := range report.Checks {
				fmt.Fprintf(out, "[%-4s] %-18s %s\n", c.Status, c.Name, c.Message)
				if c.Fix != "" {
					fmt.Fprintf(out, "       fix: %s\n", c.Fix)
				}
			}
			fmt.Fprintf(out, "\n%d pass, %d warn, %d fail\n",
				report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
		}

		if report.Status == "fail" {
			return fmt.Errorf("doctor found failing checks")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip network reachability checks")
}
