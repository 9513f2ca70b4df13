// Package main loads a problem file, describes every constraint in it and prints the residuals
// and, optionally, the stacked Jacobian at the configured state values.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/factorgraph/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		stop()
		logging.NewLogger("kinematic-residual").Fatal(err)
	}
}
