// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	quiet      bool
	debug      bool
	format     string
	outputFile string
	logFormat  string
)

// logLevel controls the global slog level at runtime.
var logLevel = new(slog.LevelVar)

// exitFunc is the function called to exit the program.
// This can be overridden in tests to capture exit calls.
var exitFunc = os.Exit

var rootCmd = &cobra.Command{
	Use:   "trustpin",
	Short: "Certificate pinning policy tool",
	Long: `trustpin inspects and exercises certificate pinning policies.

Commands:
  pin     - compute SPKI pins from certificates or discover them in DNS
  policy  - validate a pinning policy file
  check   - connect to a server and report the pinning decision

Pins use the "sha256/<base64>" form accepted in policy files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format (text|json|yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text|json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(checkCmd)
}

// configureLogging installs the default slog handler on stderr from the
// --debug, --quiet and --log-format flags.
func configureLogging() {
	logLevel.Set(levelFromFlags(debug, quiet))
	slog.SetDefault(slog.New(newLogHandler(os.Stderr, logFormat, debug)))
}

// levelFromFlags maps the verbosity flags onto a level. Debug wins over
// quiet.
func levelFromFlags(debug, quiet bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	if quiet {
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogHandler returns a JSON handler for "json" and a text handler for
// anything else. Source locations are added with withSource.
func newLogHandler(w io.Writer, logFmt string, withSource bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel, AddSource: withSource}
	if logFmt == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
