package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List export files in the sync directory, newest first",
	RunE:  appctx.WithApp(appctx.Options{}, runExports),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show wall totals and sync directory state",
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runStats),
}

func init() {
	rootCmd.AddCommand(exportsCmd)
	rootCmd.AddCommand(statsCmd)

	addOutputFlags(exportsCmd)
	addOutputFlags(statsCmd)
}

func runExports(app *appctx.App, cmd *cobra.Command, args []string) error {
	files, err := app.Service().ExportFiles()
	if err != nil {
		return err
	}
	if files == nil {
		files = []string{}
	}

	r := renderer(cmd)
	if handled, err := r.Structured(files); handled || err != nil {
		return err
	}
	return r.RenderList(files)
}

func runStats(app *appctx.App, cmd *cobra.Command, args []string) error {
	stats, err := app.Service().SyncStats()
	if err != nil {
		return err
	}

	if handled, err := renderer(cmd).Structured(stats); handled || err != nil {
		return err
	}

	latest := "(none)"
	if stats.LatestPost != nil {
		latest = *stats.LatestPost
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "device:      %s\n", stats.Device)
	fmt.Fprintf(out, "posts:       %d\n", stats.TotalPosts)
	fmt.Fprintf(out, "likes:       %d\n", stats.TotalLikes)
	fmt.Fprintf(out, "latest post: %s\n", latest)
	fmt.Fprintf(out, "sync dir:    %s (%d exports)\n", stats.SyncDir, stats.ExportCount)
	return nil
}
