package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
	"github.com/lherron/kindwall/internal/wallsync"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the wall to a snapshot file in the sync directory",
	Long: `Export writes every post and comment, with author identities and likes,
to wall_export_<timestamp>.json in the sync directory, then removes all but
the newest exports (KINDWALL_KEEP_EXPORTS, default 5).

The snapshot_rev in the file depends only on wall content, so exporting an
unchanged wall twice yields the same revision.`,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runExport),
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Bool("compress", false, "Write a zstd-compressed .json.zst file")
	exportCmd.Flags().String("out-dir", "", "Directory to write to (overrides KINDWALL_SYNC_DIR)")
	exportCmd.Flags().Bool("canonical", false, "Write compact canonical JSON instead of indented JSON")
	addOutputFlags(exportCmd)
}

func runExport(app *appctx.App, cmd *cobra.Command, args []string) error {
	if dir, _ := cmd.Flags().GetString("out-dir"); dir != "" {
		app.Config.SyncDir = dir
	}
	if cmd.Flags().Changed("compress") {
		app.Config.CompressExports, _ = cmd.Flags().GetBool("compress")
	}

	canonical, _ := cmd.Flags().GetBool("canonical")
	svc := app.Service(func(o *wallsync.Options) { o.Canonical = canonical })

	result, err := svc.Export()
	if err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}

	r := renderer(cmd)
	if handled, err := r.Structured(result); handled || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Exported snapshot to %s\n", mark(out, true), result.OutputPath)
	fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
	fmt.Fprintf(out, "  posts: %d, comments: %d\n", result.PostCount, result.CommentCount)
	for _, p := range result.PrunedExports {
		fmt.Fprintf(out, "  pruned: %s\n", p)
	}
	return nil
}
