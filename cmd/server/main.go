/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the billing statement engine. Handles
  configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve      HTTP API plus the background daily scheduler
  run-daily  One daily billing pass, then exit (external cron trigger)
  migrate    Apply database migrations and exit
  token      Issue a bearer token for a user id (development)

CONFIGURATION:
  --config points at an optional YAML file. Every key can be overridden
  with a BILLING_* environment variable; a .env file in the working
  directory is loaded first. See config/config.go.

EXAMPLES:
  # Run the server with an in-memory database, auth off
  BILLING_DATABASE_PATH=":memory:" BILLING_AUTH_ENABLED=false ./server serve

  # Nightly cron
  ./server run-daily --config /etc/billing/config.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - billing/schedule.go: Daily pass
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "server",
	Short:   "Billing statement engine",
	Long:    "Maintains per-client balance ledgers, generates billing statements, applies payments and runs the daily statement schedule.",
	Version: version,

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ./config.yaml if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
