package main

import "github.com/spf13/cobra"

// buildServeCmd creates the "serve" command that starts the gateway's HTTP
// surface. Grounded on the teacher's buildServeCmd (local flag vars
// captured by the RunE closure, delegating to a run<Verb> helper); RANTS
// has no profile system, so --config defaults to a plain relative path
// instead of profile.DefaultConfigPath().
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RANTS gateway",
		Long: `Start the RANTS gateway HTTP server.

The server will:
1. Load configuration from the specified file (or config.yaml)
2. Open the embedded SQLite transcript store and apply pending migrations
3. Construct the generator, tool_compiler, and (if configured) vision backends
4. Start the HTTP server exposing /v1/responses, /v1/chat/completions,
   /v1/models, /health, and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  rants serve

  # Start with a custom config file
  rants serve --config /etc/rants/production.yaml

  # Start with debug logging
  rants serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}
