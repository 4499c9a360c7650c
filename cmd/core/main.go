// Package main is the damagelog operator command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kimhsiao/damagelog/backend/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	cmd.Version = Version
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if code := cli.GetExitCode(err); code != cli.ExitFailure {
			fmt.Fprintln(os.Stderr, err)
			return code
		}
		return cli.ExitFailure
	}
	return cli.ExitSuccess
}
