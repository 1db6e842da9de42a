// Package main provides the CLI entry point for callbridge, the voice
// QA call service.
//
// Start the webhook server:
//
//	callbridge serve --config callbridge.yaml
//
// Validate a configuration file:
//
//	callbridge config validate --config callbridge.yaml
//
// Configuration values may reference environment variables with ${VAR}
// syntax; GROQ_API_KEY and TWILIO_AUTH_TOKEN are the usual ones.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callbridge",
		Short: "callbridge - Twilio voice QA dialog service",
		Long: `callbridge answers inbound phone calls, transcribes caller questions via
Twilio speech recognition, routes them through an intent classifier and a
question-answering backend, and speaks the answers back.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
