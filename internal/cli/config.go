package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dynsched/internal/sim"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sim.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := sim.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
