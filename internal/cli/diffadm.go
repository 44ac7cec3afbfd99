package cli

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/snapshot"
)

var diffAdmCmd = &cobra.Command{
	Use:   "diff <snapshot-a> <snapshot-b>",
	Short: "Show a unified diff of two snapshots",
	Long: `Diff renders both snapshots in canonical indented form, without their
export date, and prints a unified diff. Identical wall content prints
nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiffAdm,
}

func init() {
	rootAdmCmd.AddCommand(diffAdmCmd)
	diffAdmCmd.Flags().IntP("context", "U", 3, "Lines of context")
}

func runDiffAdm(cmd *cobra.Command, args []string) error {
	lines, _ := cmd.Flags().GetInt("context")

	text, err := diffSnapshots(args[0], args[1], lines)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}

// diffSnapshots returns the unified diff of two snapshot files' content.
func diffSnapshots(pathA, pathB string, context int) (string, error) {
	a, err := diffable(pathA)
	if err != nil {
		return "", err
	}
	b, err := diffable(pathB)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: pathA,
		ToFile:   pathB,
		Context:  context,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff snapshots: %w", err)
	}
	return text, nil
}

func diffable(path string) (string, error) {
	doc, err := snapshot.Load(path)
	if err != nil {
		return "", err
	}
	doc.ExportDate = ""
	data, err := snapshot.PrettyJSON(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
