// Command universe keeps a local cache of market and macro time series current.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"global-universe/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
