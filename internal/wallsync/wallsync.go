// Package wallsync is the sync facade used by the command line: it binds a
// store to this installation's device label, sync directory and importing
// user.
package wallsync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lherron/kindwall/internal/config"
	"github.com/lherron/kindwall/internal/identity"
	"github.com/lherron/kindwall/internal/snapshot"
	"github.com/lherron/kindwall/internal/store"
)

// Options configures a Service.
type Options struct {
	DeviceLabel string
	SyncDir     string
	KeepExports int
	Compress    bool
	Canonical   bool
	ImporterID  int64 // local user imports are performed as; 0 disables Import
	Logger      *slog.Logger
	Recorder    snapshot.Recorder
	Now         func() time.Time
}

// OptionsFromConfig maps the loaded configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeviceLabel: cfg.DeviceName,
		SyncDir:     cfg.SyncDir,
		KeepExports: cfg.KeepExports,
		Compress:    cfg.CompressExports,
	}
}

// SyncStats summarizes the wall and the sync directory.
type SyncStats struct {
	Device       string  `json:"device" yaml:"device"`
	SyncDir      string  `json:"sync_dir" yaml:"sync_dir"`
	TotalPosts   int     `json:"total_posts" yaml:"total_posts"`
	TotalLikes   int     `json:"total_likes" yaml:"total_likes"`
	LatestPost   *string `json:"latest_post" yaml:"latest_post"`
	ExportCount  int     `json:"export_count" yaml:"export_count"`
	LatestExport string  `json:"latest_export,omitempty" yaml:"latest_export,omitempty"`
}

// Service runs exports, imports and identity maintenance for one
// installation.
type Service struct {
	store    *store.Store
	opts     Options
	logger   *slog.Logger
	resolver *identity.Resolver
}

// New creates a Service.
func New(s *store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger

	resolver := identity.NewResolver(s, logger)
	if opts.ImporterID != 0 {
		id := opts.ImporterID
		resolver.ActorID = &id
	}

	return &Service{
		store:    s,
		opts:     opts,
		logger:   logger.With(slog.String("device", opts.DeviceLabel)),
		resolver: resolver,
	}
}

// Export writes a snapshot of the wall to the sync directory and prunes old
// exports.
func (s *Service) Export() (*snapshot.ExportResult, error) {
	res, err := snapshot.Export(s.store, snapshot.ExportOptions{
		DeviceLabel: s.opts.DeviceLabel,
		OutputDir:   s.opts.SyncDir,
		Compress:    s.opts.Compress,
		Canonical:   s.opts.Canonical,
		KeepLast:    s.opts.KeepExports,
		Now:         s.opts.Now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("snapshot exported",
		slog.String("path", res.OutputPath),
		slog.String("snapshot_rev", res.SnapshotRev),
		slog.Int("posts", res.PostCount),
		slog.Int("comments", res.CommentCount),
		slog.Int("pruned", len(res.PrunedExports)))
	return res, nil
}

// Import merges the snapshot at path as the configured importing user. A
// *snapshot.FormatError means nothing was written.
func (s *Service) Import(path string) (*snapshot.MergeStatistics, error) {
	if s.opts.ImporterID == 0 {
		return nil, fmt.Errorf("no importing user configured")
	}

	stats, err := snapshot.Import(s.store, path, snapshot.MergeOptions{
		ImporterID:  s.opts.ImporterID,
		DeviceLabel: s.opts.DeviceLabel,
		Logger:      s.logger.With(slog.String("snapshot", path)),
		Recorder:    s.opts.Recorder,
	})
	if err != nil {
		s.logger.Error("snapshot rejected", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}
	return stats, nil
}

// IdentitySummary counts local users and those with a stable identity.
func (s *Service) IdentitySummary() (identity.Summary, error) {
	return s.resolver.Summary()
}

// EnsureIdentity returns the user's stable identity, minting one if needed.
func (s *Service) EnsureIdentity(userID int64) (string, error) {
	return s.resolver.EnsureIdentity(userID)
}

// IdentityInfo returns the sync details of one user.
func (s *Service) IdentityInfo(userID int64) (*identity.SyncInfo, error) {
	return s.resolver.Info(userID)
}

// ExportFiles lists the export files in the sync directory, newest first.
func (s *Service) ExportFiles() ([]string, error) {
	return snapshot.ListExports(s.opts.SyncDir)
}

// SyncStats reports wall totals and the state of the sync directory.
func (s *Service) SyncStats() (*SyncStats, error) {
	wall, err := s.store.Posts.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read wall stats: %w", err)
	}
	files, err := s.ExportFiles()
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{
		Device:      s.opts.DeviceLabel,
		SyncDir:     s.opts.SyncDir,
		TotalPosts:  wall.TotalPosts,
		TotalLikes:  wall.TotalLikes,
		LatestPost:  wall.LatestPost,
		ExportCount: len(files),
	}
	if len(files) > 0 {
		stats.LatestExport = files[0]
	}
	return stats, nil
}
