package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/simlink/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with simlink config files",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		kind  string
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config for the sim or agent side",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(out, kind, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", kind, out)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", config.KindSim, "config kind: sim or agent")
	cmd.Flags().StringVar(&out, "out", "", "destination path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
