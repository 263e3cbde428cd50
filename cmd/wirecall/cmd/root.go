package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "0.1.0"

// NewRootCommand builds the wirecall command tree. Definition files are
// read from fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	root := &cobra.Command{
		Use:   "wirecall",
		Short: "wirecall developer tool",
		Long: `wirecall is the command-line companion of the wirecall pub/sub RPC.

Available commands:
  schema     Compile interface definition files and print method ids
  naming     Build and parse cluster session principal tokens
  registry   Inspect the bindings of a running node
  version    Print the version

Use "wirecall [command] --help" for more information about a specific command.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newSchemaCommand(fs),
		newNamingCommand(),
		newRegistryCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command against the OS filesystem. An interrupt
// cancels the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand(afero.NewOsFs()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
