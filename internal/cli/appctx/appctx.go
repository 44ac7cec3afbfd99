// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, database opening, and
// importing-user resolution to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/config"
	"github.com/lherron/kindwall/internal/db"
	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/store"
	"github.com/lherron/kindwall/internal/wallsync"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Logger writes structured diagnostics to stderr
	Logger *slog.Logger

	// DB is the opened database connection (nil if NeedsDB is false)
	DB *db.DB

	// Store wraps DB (nil if NeedsDB is false)
	Store *store.Store

	// User is the resolved local user (nil if NeedsUser is false)
	User *domain.User
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
		a.Store = nil
	}
}

// Service returns a sync service configured for this installation and,
// when resolved, the current user. configure funcs adjust the options last.
func (a *App) Service(configure ...func(*wallsync.Options)) *wallsync.Service {
	opts := wallsync.OptionsFromConfig(a.Config)
	opts.Logger = a.Logger
	if a.User != nil {
		opts.ImporterID = a.User.ID
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return wallsync.New(a.Store, opts)
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	NeedsDB bool

	// NeedsUser indicates whether to resolve the current user.
	// Requires NeedsDB to also be true.
	NeedsUser bool
}

// DefaultOptions returns default options (DB required, no user).
func DefaultOptions() Options {
	return Options{
		NeedsDB:   true,
		NeedsUser: false,
	}
}

// WithUser returns options that require both DB and user.
func WithUser() Options {
	return Options{
		NeedsDB:   true,
		NeedsUser: true,
	}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if dbPath := flagValue(cmd, "db"); dbPath != "" {
		app.Config.DBPath = dbPath
	}
	if level := flagValue(cmd, "log-level"); level != "" {
		app.Config.LogLevel = level
	}

	logger, err := NewLogger(cmd.ErrOrStderr(), app.Config.LogLevel)
	if err != nil {
		return nil, err
	}
	app.Logger = logger

	if opts.NeedsDB {
		database, err := db.Open(app.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		if migErr := database.RequiresMigrationError(); migErr != nil {
			database.Close()
			return nil, migErr
		}

		app.DB = database
		app.Store = store.New(database)

		if app.Config.DeviceFromHost {
			label, ok, err := app.Store.Settings.Get(store.DeviceLabelKey)
			if err != nil {
				app.Close()
				return nil, err
			}
			if ok {
				app.Config.DeviceName = label
			}
		}
	}

	if opts.NeedsUser {
		if app.Store == nil {
			app.Close()
			return nil, fmt.Errorf("user resolution requires database (set NeedsDB: true)")
		}

		user, err := resolveUser(app.Store, app.Config, cmd)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.User = user
	}

	return app, nil
}

// NewLogger builds a text logger at the named level: debug, info, warn or error.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// resolveUser resolves the current user from the --as flag, environment or
// config.
func resolveUser(s *store.Store, cfg *config.Config, cmd *cobra.Command) (*domain.User, error) {
	ref := flagValue(cmd, "as")
	if ref == "" {
		ref = cfg.GetUser()
	}
	if ref == "" {
		return nil, fmt.Errorf("no user configured (set KINDWALL_USER, default_user, or use --as flag)")
	}
	return LookupUser(s, ref)
}

// LookupUser finds a local user by id (numeric ref) or username.
func LookupUser(s *store.Store, ref string) (*domain.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		user, err := s.Users.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user: %w", err)
		}
		return user, nil
	}

	user, err := s.Users.FindByUsername(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("failed to resolve user: no user named %q", ref)
	}
	return user, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
