package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/tugquiz-backend/internal/config"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := config.Default()
	cobra.CheckErr(newCmd(&cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tugquiz [--room CODE] --name NAME",
		Short: "Play a tug-of-war quiz from the terminal.",
		Long: "Creates a room, or joins one with --room, and plays it.\n" +
			"Type 1-4 to answer, or start, voice, mute, video, camera <name>, reset, quit.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnv(cmd.Flags(), cfg.EnvFile); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return play(ctx, cfg, os.Stdin, cmd.OutOrStdout())
		},
	}
	config.AddClientFlags(cmd.Flags(), cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}
