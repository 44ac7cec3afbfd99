package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/bulk"
	"github.com/lherron/kindwall/internal/snapshot"
)

var verifyAdmCmd = &cobra.Command{
	Use:   "verify <snapshot-file>...",
	Short: "Verify snapshots are well-formed and their revisions match their content",
	Long: `Verify loads each snapshot (.json or .json.zst) and checks that:

1. It parses and validates as a supported snapshot version
2. It re-encodes to the same canonical JSON after a round trip
3. Its recorded snapshot_rev matches the revision of its content

Files are checked in parallel (--jobs, default one per CPU). Any failed
verification is reported as an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerifyAdm,
}

func init() {
	rootAdmCmd.AddCommand(verifyAdmCmd)
	verifyAdmCmd.Flags().IntP("jobs", "j", 0, "Files to verify concurrently (0 = one per CPU)")
	addOutputFlags(verifyAdmCmd)
}

func runVerifyAdm(cmd *cobra.Command, args []string) error {
	jobs, _ := cmd.Flags().GetInt("jobs")

	var files []string
	index := make(map[string]int, len(args))
	for _, path := range args {
		if _, dup := index[path]; !dup {
			index[path] = len(files)
			files = append(files, path)
		}
	}
	results := make([]*snapshot.VerifyResult, len(files))

	op := &bulk.Operation{Jobs: jobs, ContinueOnError: true}
	run := op.Execute(files, func(path string) error {
		result, err := snapshot.Verify(path)
		if err != nil {
			results[index[path]] = &snapshot.VerifyResult{InputPath: path, Message: err.Error()}
			return err
		}
		results[index[path]] = result
		if !result.Valid {
			return fmt.Errorf("verification failed")
		}
		return nil
	})

	var data any = results
	if len(files) == 1 {
		if run.Failed > 0 && results[0].ComputedRev == "" {
			return run.Err()
		}
		data = results[0]
	}
	handled, err := renderer(cmd).Structured(data)
	if err != nil {
		return err
	}
	if !handled {
		out := cmd.OutOrStdout()
		for _, result := range results {
			printVerifyResult(out, result, len(files) > 1)
		}
	}

	return bulkError(run)
}

func printVerifyResult(out io.Writer, result *snapshot.VerifyResult, named bool) {
	if named {
		fmt.Fprintf(out, "%s %s: %s\n", mark(out, result.Valid), result.InputPath, result.Message)
	} else {
		fmt.Fprintf(out, "%s %s\n", mark(out, result.Valid), result.Message)
	}
	if result.SnapshotRev != "" {
		fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
	}
	if result.ComputedRev != result.SnapshotRev {
		fmt.Fprintf(out, "  computed_rev: %s\n", result.ComputedRev)
	}
}
