package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dativo-io/warden/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter warden.config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "init")
		defer span.End()

		const path = "warden.config.yaml"
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		template := map[string]any{
			config.KeyTopK:            config.DefaultTopK,
			config.KeyMinSimilarity:   config.DefaultMinSimilarity,
			config.KeyMemoryBackend:   config.DefaultMemoryBackend,
			config.KeyMemoryMode:      config.DefaultMemoryMode,
			config.KeyAgentBackend:    config.DefaultAgentBackend,
			config.KeyStudentProvider: config.DefaultStudentProvider,
			config.KeyStudentModel:    config.DefaultStudentModel,
			config.KeyExpertProvider:  config.DefaultExpertProvider,
			config.KeyExpertModel:     config.DefaultExpertModel,
			config.KeyOllamaBaseURL:   config.DefaultOllamaURL,
			config.KeyAuditEvery:      config.DefaultAuditEvery,
		}
		data, err := yaml.Marshal(template)
		if err != nil {
			return fmt.Errorf("marshalling config template: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		log.Info().Str("path", path).Msg("config_written")
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Set WARDEN_API_KEY (or TOGETHER_API_KEY) to use hosted models.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
