package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/simlink/internal/protocol"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simlink: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates broken wiring (2) from everything else (1).
func exitCode(err error) int {
	if protocol.IsFatal(err) {
		return 2
	}
	return 1
}
