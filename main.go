package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/wildfire-loader/cmd"
	"github.com/tphakala/wildfire-loader/internal/buildinfo"
	"github.com/tphakala/wildfire-loader/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewContext(buildinfo.NewContext(version, buildDate))
	if err := cmd.RootCommand(app).ExecuteContext(ctx); err != nil {
		// PersistentPostRunE is skipped on failure
		_ = app.Close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
