package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/state"
)

var stateReset bool

var stateCmd = &cobra.Command{
	Use:   "state [identity]",
	Short: "Show or reset tracked user states",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "state")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		tracker, err := state.NewTracker(cfg.StateDBPath())
		if err != nil {
			return err
		}
		defer tracker.Close()

		out := cmd.OutOrStdout()

		if len(args) == 1 {
			identity := args[0]
			if stateReset {
				if err := tracker.Reset(ctx, identity); err != nil {
					return err
				}
				fmt.Fprintf(out, "reset %s\n", identity)
				return nil
			}
			s, err := tracker.Get(ctx, identity)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", identity, s.Fingerprint())
			return nil
		}

		snap, err := tracker.Snapshot(ctx)
		if err != nil {
			return err
		}
		identities := make([]string, 0, len(snap))
		for identity := range snap {
			identities = append(identities, identity)
		}
		sort.Strings(identities)
		var bans, warnings, timeouts int
		for _, identity := range identities {
			s := snap[identity]
			bans += s.BanCount
			warnings += s.WarningCount
			timeouts += s.TimeoutCount
			fmt.Fprintf(out, "%-16s %s\n", identity, s.Fingerprint())
		}
		fmt.Fprintf(out, "\n%d users, %d bans, %d warnings, %d timeouts\n",
			len(identities), bans, warnings, timeouts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().BoolVar(&stateReset, "reset", false, "zero the counters for the given identity")
}
