package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
	"github.com/lherron/kindwall/internal/db"
	"github.com/lherron/kindwall/internal/store"
)

var initAdmCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the wall database and sync directory",
	Long: `Initialize creates the SQLite database, runs migrations and creates the
sync directory. With --user, a local user is created (if missing) and given
a stable sync identity.

The device label is recorded in the database on first init. When neither
KINDWALL_DEVICE nor device_name is set, later runs use the recorded label
instead of the current hostname.

Running init on an existing database only applies pending migrations.`,
	RunE: appctx.WithApp(appctx.Options{}, runInitAdm),
}

func init() {
	rootAdmCmd.AddCommand(initAdmCmd)

	initAdmCmd.Flags().String("user", "", "Create this local user with a sync identity")
}

func runInitAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	cfg := app.Config

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := os.MkdirAll(cfg.SyncDir, 0755); err != nil {
		return fmt.Errorf("failed to create sync directory: %w", err)
	}

	// The label chosen here outlives hostname changes; an explicit setting
	// still wins on later runs.
	s := store.New(database)
	label, err := s.Settings.SetIfAbsent(store.DeviceLabelKey, cfg.DeviceName)
	if err != nil {
		return err
	}
	if cfg.DeviceFromHost {
		cfg.DeviceName = label
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Initialized database at %s\n", mark(out, true), cfg.DBPath)
	if len(applied) > 0 {
		fmt.Fprintf(out, "  applied %d migration(s)\n", len(applied))
	}
	fmt.Fprintf(out, "  sync dir: %s\n", cfg.SyncDir)
	fmt.Fprintf(out, "  device:   %s\n", cfg.DeviceName)

	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		return nil
	}

	user, err := s.Users.FindByUsername(username)
	if err != nil {
		return err
	}
	if user == nil {
		user, err = s.Users.Create(nil, store.CreateUserParams{Username: username, OriginDevice: cfg.DeviceName})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
	}
	id, err := s.Users.EnsureSyncUUID(&user.ID, user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  user:     %s (id %d, sync %s)\n", user.Username, user.ID, id)
	return nil
}
