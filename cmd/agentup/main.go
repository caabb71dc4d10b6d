// Package main is the entry point for the agentup CLI.
//
// agentup installs a monitoring agent onto a freshly provisioned remote
// machine, waiting out cloud-init and package-manager contention instead of
// failing on them. It validates system readiness, installs OS dependencies
// and the agent itself with bounded retries, verifies the resulting service,
// and optionally registers it with a control plane.
//
// Commands: init, install, doctor, version, completion.
//
// For detailed usage information, run:
//
//	agentup --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/agentup/cmd/agentup/commands"
	"github.com/imamik/agentup/internal/install"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(install.ExitCodeFor(err))
	}
}
