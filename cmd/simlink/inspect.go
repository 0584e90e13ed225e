package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/simlink/internal/shm"
)

func newInspectCmd() *cobra.Command {
	var (
		dir     string
		segment string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a segment header and its buffers without attaching",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := shm.Inspect(dir, segment)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(out, "segment   %s\n", info.Path)
			fmt.Fprintf(out, "version   %d\n", info.Version)
			fmt.Fprintf(out, "capacity  %d\n", info.Capacity)
			fmt.Fprintf(out, "lock      %s\n", info.Lock)
			fmt.Fprintf(out, "creator   pid=%d ready=%t\n", info.CreatorPID, info.CreatorReady)
			fmt.Fprintf(out, "attacher  pid=%d ready=%t\n", info.AttacherPID, info.AttacherReady)
			fmt.Fprintf(out, "closed    %t\n", info.Closed)
			for _, s := range info.Slots {
				_, err = fmt.Fprintf(out, "buffer    %s full=%t len=%d sent=%d received=%d\n",
					s.Name, s.Full, s.Length, s.Sent, s.Recvd)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the segment (default /dev/shm)")
	cmd.Flags().StringVar(&segment, "segment", "seg0", "segment name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
