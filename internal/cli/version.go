package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/snapshot"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Displays version, commit, build date and the snapshot format version.`,
		RunE:  runVersion,
	}
	addOutputFlags(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootAdmCmd.AddCommand(newVersionCmd())
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := map[string]string{
		"version":         Version,
		"commit":          GitCommit,
		"build_date":      BuildDate,
		"snapshot_format": snapshot.FormatVersion,
	}
	if handled, err := renderer(cmd).Structured(info); handled || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s version %s\n", cmd.Root().Name(), Version)
	fmt.Fprintf(out, "  commit: %s\n", GitCommit)
	fmt.Fprintf(out, "  built:  %s\n", BuildDate)
	fmt.Fprintf(out, "  snapshot format: %s\n", snapshot.FormatVersion)
	return nil
}
