package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aponysus/settle/controlplane"
	"github.com/aponysus/settle/policy"
)

func newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Inspect wait and retry presets",
	}
	cmd.AddCommand(newPresetsShowCmd(), newPresetsValidateCmd())
	return cmd
}

func newPresetsShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective presets",
		Long: `Print the effective wait and retry presets.

Example usage:
  # Built-in presets as a table
  settle presets show

  # Built-in presets overridden by a file, as YAML
  settle presets show -p presets.yaml -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets, err := loadPresets(cmd)
			if err != nil {
				return err
			}
			switch output {
			case "table":
				return writeTable(cmd.OutOrStdout(), presets)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(presets.Doc()); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown output format %q (want table or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, yaml")
	return cmd
}

func newPresetsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a presets file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := readPresets(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d wait presets, %d retry presets)\n",
				args[0], len(presets.WaitNames()), len(presets.RetryNames()))
			return nil
		},
	}
}

// loadPresets returns the presets selected by the persistent flags: a
// --presets file, a --profile fetched from --source, or the built-ins.
func loadPresets(cmd *cobra.Command) (policy.Presets, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("presets")
	if err != nil {
		return policy.Presets{}, err
	}
	if path != "" {
		return readPresets(path)
	}

	source, err := flags.GetString("source")
	if err != nil {
		return policy.Presets{}, err
	}
	if source == "" {
		return policy.DefaultPresets(), nil
	}
	profile, err := flags.GetString("profile")
	if err != nil {
		return policy.Presets{}, err
	}

	var src controlplane.Source = controlplane.FileSource{Dir: source}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		src = controlplane.HTTPSource{BaseURL: source}
	}
	return controlplane.NewRemoteProvider(src).Presets(cmd.Context(), profile)
}

func readPresets(path string) (policy.Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Presets{}, fmt.Errorf("read presets: %w", err)
	}
	presets, err := policy.ParsePresets(data)
	if err != nil {
		return policy.Presets{}, fmt.Errorf("%s: %w", path, err)
	}
	return presets, nil
}

func writeTable(w io.Writer, presets policy.Presets) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "WAIT\tTIMEOUT\tPOLL INTERVAL\tDEADLINE\tMAX INVALIDATIONS")
	for _, name := range presets.WaitNames() {
		s, err := presets.Wait(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", name, s.Timeout(), s.PollInterval(), s.DeadlinePolicy(), s.MaxInvalidations())
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "RETRY\tMAX ATTEMPTS\tINITIAL DELAY\tMULTIPLIER\tMAX DELAY")
	for _, name := range presets.RetryNames() {
		s, err := presets.Retry(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%g\t%s\n", name, s.MaxAttempts(), s.InitialDelay(), s.Multiplier(), s.MaxDelay())
	}
	return tw.Flush()
}
