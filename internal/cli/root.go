// Package cli implements the damagelog operator command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/damagelog/backend/internal/app"
	"github.com/kimhsiao/damagelog/backend/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "json" | "text"
	DataDir string

	// Open builds the engine. Tests replace it.
	Open func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		Open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.Build(ctx, cfg)
		},
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "damagelog",
		Short: "Offline capture and sync of goods-damage reports",
		Long: `damagelog stores damage reports on this device and syncs them to the
remote backend, in capture order, whenever the network is available.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "local store directory (overrides DATA_DIR)")

	cmd.AddCommand(newEnqueueCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// open loads configuration and builds the engine for one command.
func (o *RootOptions) open(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	app.InitLogging(cfg)

	a, err := o.Open(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	return a, nil
}

// fail reports err in the selected format and returns it for the exit code.
func (o *RootOptions) fail(cmd *cobra.Command, err error) error {
	_ = o.formatter(cmd).Error(err)
	return err
}
