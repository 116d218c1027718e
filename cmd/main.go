package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/histsync/internal/cli"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM. A cancelled run still
	// writes its report before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
