// Command rants is the RANTS inference gateway's composition root: it
// loads config.yaml, wires the Transcript Store, Tool Registry, Model
// Backend Ports, Tool Compiler, and Orchestrator, and serves the
// OpenAI-compatible HTTP surface. Grounded on the teacher's cmd/nexus
// entry point (buildRootCmd + Cobra subcommand tree, ldflags-populated
// version vars).
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds:
//
//	go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main() so it can be exercised directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rants",
		Short: "RANTS - a single-virtual-model recursive inference gateway",
		Long: `RANTS exposes one OpenAI-compatible virtual model ("rants_one") backed
by a recursive tool-use loop: generate, compile a tool intent, execute,
repeat, against /v1/responses and /v1/chat/completions.`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)

	return rootCmd
}

func versionString() string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}
