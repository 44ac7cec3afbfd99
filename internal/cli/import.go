package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/bulk"
	"github.com/lherron/kindwall/internal/cli/appctx"
	"github.com/lherron/kindwall/internal/metrics"
	"github.com/lherron/kindwall/internal/snapshot"
	"github.com/lherron/kindwall/internal/wallsync"
)

var importCmd = &cobra.Command{
	Use:   "import <snapshot-file>...",
	Short: "Merge snapshots from other installations into the wall",
	Long: `Import merges posts, comments and likes from snapshot files (.json or
.json.zst) into the local wall, on behalf of the user given by --as or
KINDWALL_USER.

Records already present are skipped, authors are matched by their stable
identity or created, and records that cannot be merged are counted as
conflicts without stopping the import. A file that cannot be read, parsed
or is of an unsupported version is rejected before anything is written.

Several files are merged one at a time in argument order. By default the
first rejected file stops the run; --continue-on-error merges the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.WithUser(), runImport),
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("metrics-textfile", "", "Write Prometheus counters for this import to PATH")
	importCmd.Flags().Bool("continue-on-error", false, "Keep merging remaining files after a rejected one")
	addOutputFlags(importCmd)
}

type importResult struct {
	File  string                    `json:"file" yaml:"file"`
	Stats *snapshot.MergeStatistics `json:"stats,omitempty" yaml:"stats,omitempty"`
	Error string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	textfile, _ := cmd.Flags().GetString("metrics-textfile")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")

	var recorder *metrics.PromRecorder
	if textfile != "" {
		recorder = metrics.NewPromRecorder()
	}

	svc := app.Service(func(o *wallsync.Options) {
		if recorder != nil {
			o.Recorder = recorder
		}
	})

	results := make([]importResult, 0, len(args))
	op := &bulk.Operation{Ordered: true, ContinueOnError: continueOnError}
	if len(args) > 1 {
		op.Progress = cmd.ErrOrStderr()
	}
	run := op.Execute(args, func(path string) error {
		stats, err := svc.Import(path)
		if recorder != nil {
			recorder.RecordImport(err != nil)
		}
		res := importResult{File: path, Stats: stats}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
		if err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		return nil
	})

	if recorder != nil {
		if err := recorder.WriteTextfile(textfile); err != nil {
			app.Logger.Warn("failed to write metrics textfile", "path", textfile, "error", err)
		}
	}

	if len(args) == 1 {
		if err := run.Err(); err != nil {
			return err
		}
		r := renderer(cmd)
		if handled, err := r.Structured(results[0].Stats); handled || err != nil {
			return err
		}
		printMergeSummary(cmd.OutOrStdout(), args[0], results[0].Stats)
		return nil
	}

	handled, err := renderer(cmd).Structured(results)
	if err != nil {
		return err
	}
	if !handled {
		out := cmd.OutOrStdout()
		for _, res := range results {
			if res.Stats != nil {
				printMergeSummary(out, res.File, res.Stats)
			} else {
				fmt.Fprintf(out, "%s Rejected %s: %s\n", mark(out, false), res.File, res.Error)
			}
		}
		run.PrintSummary(out)
	}
	return bulkError(run)
}

func printMergeSummary(out io.Writer, path string, stats *snapshot.MergeStatistics) {
	fmt.Fprintf(out, "%s Imported snapshot from %s\n", mark(out, stats.Conflicts() == 0), path)
	if stats.SourceDevice != "" {
		fmt.Fprintf(out, "  source device: %s\n", stats.SourceDevice)
	}
	if stats.SnapshotRev != "" {
		fmt.Fprintf(out, "  snapshot_rev:  %s\n", stats.SnapshotRev)
	}
	for _, row := range []struct {
		name string
		es   snapshot.EntityStats
	}{
		{"posts", stats.Posts},
		{"comments", stats.Comments},
		{"likes", stats.Likes},
	} {
		fmt.Fprintf(out, "  %-9s %d imported, %d skipped, %d conflicts\n",
			row.name+":", row.es.Imported, row.es.Skipped, row.es.Conflicts)
	}
	fmt.Fprintf(out, "  users created: %d\n", stats.UsersCreated)
}
