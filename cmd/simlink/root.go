package main

import (
	"github.com/spf13/cobra"

	"github.com/danmuck/simlink/internal/logging"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "simlink",
		Short:         "simlink: lock-step environment sessions over shared memory",
		Long:          "simlink couples a simulator and a learning controller through a shared-memory channel. Each step the simulator reports its state and blocks until the controller answers with an action.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}
	rootCmd.AddCommand(
		newVersionCmd(),
		newSimCmd(),
		newAgentCmd(),
		newInspectCmd(),
		newConfigCmd(),
	)
	return rootCmd
}
