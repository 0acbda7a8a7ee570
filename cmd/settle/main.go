// Command settle inspects wait and retry presets and waits on HTTP resources
// from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "settle",
		Short:         "Wait and retry presets for remote entities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("presets", "p", "", "YAML presets file layered over the built-in presets")
	root.PersistentFlags().String("source", "", "Directory or base URL serving <profile>.yaml preset documents")
	root.PersistentFlags().String("profile", "default", "Preset profile fetched from --source")

	root.AddCommand(newPresetsCmd(), newWaitCmd())
	return root
}
