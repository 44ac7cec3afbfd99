package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
	"github.com/lherron/kindwall/internal/db"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the wall database schema up to date",
	Long: `Migrate applies the schema migrations bundled with this binary that the
database has not seen yet, oldest first, each in its own transaction.
Applied versions are recorded in schema_migrations, so running it again
is a no-op.

kindwall refuses to open a database with pending migrations; run this
after upgrading. --dry-run lists what would be applied and --status
lists both applied and pending versions.`,
	RunE: appctx.WithApp(appctx.Options{}, runMigrateAdm),
}

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().Bool("dry-run", false, "List pending migrations without applying them")
	migrateAdmCmd.Flags().Bool("status", false, "List applied and pending migrations")
}

func runMigrateAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.Config.DBPath == "" {
		return fmt.Errorf("database path not specified (use --db flag or set KINDWALL_DB_PATH)")
	}

	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	status, _ := cmd.Flags().GetBool("status")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if status || dryRun {
		applied, pending, err := database.MigrationStatus()
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		if status {
			printAppliedMigrations(out, applied)
		}
		printPendingMigrations(out, pending)
		return nil
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date.")
		return nil
	}
	for _, version := range applied {
		fmt.Fprintf(out, "%s %s\n", mark(out, true), version)
	}
	fmt.Fprintf(out, "Applied %d migration(s) to %s.\n", len(applied), database.Path())
	app.Logger.Info("schema migrated", "db", database.Path(), "applied", len(applied))
	return nil
}

func printAppliedMigrations(out io.Writer, applied []db.AppliedMigration) {
	if len(applied) == 0 {
		fmt.Fprintln(out, "No migrations applied.")
		return
	}
	fmt.Fprintln(out, "Applied:")
	for _, m := range applied {
		fmt.Fprintf(out, "  %s  %s\n", m.Version, m.AppliedAt)
	}
}

func printPendingMigrations(out io.Writer, pending []string) {
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return
	}
	fmt.Fprintln(out, "Pending:")
	for _, version := range pending {
		fmt.Fprintf(out, "  %s\n", version)
	}
}
