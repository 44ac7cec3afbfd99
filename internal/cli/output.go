package cli

import (
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/bulk"
	"github.com/lherron/kindwall/internal/render"
)

// addOutputFlags registers --json and --yaml on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("yaml", false, "Output as YAML")
}

// renderer builds a renderer for cmd's output flags.
func renderer(cmd *cobra.Command) *render.Renderer {
	format := render.FormatTable
	if v, _ := cmd.Flags().GetBool("json"); v {
		format = render.FormatJSON
	} else if v, _ := cmd.Flags().GetBool("yaml"); v {
		format = render.FormatYAML
	}
	out := cmd.OutOrStdout()
	return render.NewRenderer(out, render.Options{
		Format:    format,
		Porcelain: !isTerminal(out),
	})
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// mark prefixes human summaries: a symbol on terminals, a word in pipes.
func mark(w io.Writer, ok bool) string {
	switch {
	case isTerminal(w) && ok:
		return "✓"
	case isTerminal(w):
		return "✗"
	case ok:
		return "ok:"
	default:
		return "error:"
	}
}

// exitError carries a process exit status other than 1
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// bulkError converts a multi-file result into an error with its exit status
func bulkError(run *bulk.Result) error {
	err := run.Err()
	if err == nil || run.ExitCode() == 1 {
		return err
	}
	return &exitError{code: run.ExitCode(), err: err}
}

// ExitCode returns the process exit status for an error returned by
// Execute or ExecuteAdmin: 0 for nil, 5 for partial multi-file failure, else 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}
