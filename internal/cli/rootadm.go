package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "kindwalladm",
	Short: "Administrative CLI for the kindness wall database and snapshots",
	Long: `kindwalladm is the administrative companion to kindwall. It handles
database lifecycle (init, migrate), local users, and offline snapshot
checks (verify, diff).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Path to database file (overrides KINDWALL_DB_PATH)")
	rootAdmCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides KINDWALL_LOG_LEVEL)")
}
