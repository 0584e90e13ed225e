package main

import (
	"github.com/spf13/cobra"

	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/envs/walk"
)

func newAgentCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Create the channel and drive an episode with the walk policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, config.KindAgent)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cmd.OutOrStdout(), cfg, walk.Policy)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to an agent config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
