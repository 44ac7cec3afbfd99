package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kindwall",
	Short: "Share the kindness wall between installations",
	Long: `kindwall exports the local kindness wall to snapshot files in a sync
directory and merges snapshots written by other installations. Imports are
idempotent: posts and comments already present are recognized by their
content fingerprint and skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides KINDWALL_DB_PATH)")
	rootCmd.PersistentFlags().String("as", "", "Local user to import as (username or id)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides KINDWALL_LOG_LEVEL)")
}
