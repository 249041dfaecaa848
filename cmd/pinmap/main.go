// Command pinmap renders the USB e-paper board pin table for other
// toolchains: a C header, a Markdown table, or YAML/JSON listings.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"usb-epaper-go/board"
)

var (
	// Global flags
	output  string
	force   bool
	verbose bool

	logger = zap.NewNop()
)

var errUnknownPin = errors.New("unknown pin name")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pinmap",
		Short:         "Render the USB e-paper board pin table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	root.PersistentFlags().BoolVar(&force, "force", false, "overwrite an existing output file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		renderCmd("header", "C header with one #define per pin", func(w io.Writer) error {
			return WriteHeader(w, board.Bindings())
		}),
		renderCmd("table", "Markdown table", func(w io.Writer) error {
			return WriteTable(w, board.Bindings())
		}),
		renderCmd("yaml", "YAML listing", func(w io.Writer) error {
			return WriteYAML(w, board.Selected, board.Bindings())
		}),
		renderCmd("json", "JSON listing", func(w io.Writer) error {
			return WriteJSON(w, board.Selected, board.Bindings())
		}),
		lookupCmd(),
	)
	return root
}

func renderCmd(use, short string, render func(io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeFn, err := openOutput(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger.Debug("rendering", zap.String("format", use), zap.String("output", output))
			if err := render(w); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup NAME",
		Short: "Print the pin bound to NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := board.Lookup(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", errUnknownPin, args[0])
			}
			logger.Debug("lookup", zap.String("name", args[0]), zap.Uint8("pin", uint8(p)))
			_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
}

// openOutput returns stdout unless --output names a file. Existing files
// are only replaced with --force.
func openOutput(stdout io.Writer) (io.Writer, func() error, error) {
	if output == "" {
		return stdout, func() error { return nil }, nil
	}
	if !force && fileExists(output) {
		return nil, nil, fmt.Errorf("%s already exists - use --force to overwrite", output)
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", output, err)
	}
	return f, f.Close, nil
}

// fileExists returns true if the file currently exists.
func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
