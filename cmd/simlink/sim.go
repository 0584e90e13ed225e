package main

import (
	"github.com/spf13/cobra"

	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/envs/walk"
)

func newSimCmd() *cobra.Command {
	var (
		configPath string
		size       uint32
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the demo walk environment as the simulator side",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, config.KindSim)
			if err != nil {
				return err
			}
			return runSim(cmd.Context(), cmd.OutOrStdout(), cfg, walk.New(size, seed))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a sim config file")
	cmd.Flags().Uint32Var(&size, "size", 16, "number of cells in the walk")
	cmd.Flags().Int64Var(&seed, "seed", 1, "placement seed")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
