// Package bulk runs a per-file operation over many snapshot files.
package bulk

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Operation configures a run over a list of files
type Operation struct {
	Jobs            int
	ContinueOnError bool
	// Ordered forces one file at a time in argument order. Merges must run ordered.
	Ordered bool
	// Progress receives a status line per file; nil disables reporting.
	Progress io.Writer
}

// Result summarizes a bulk run
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []ItemError
}

// ItemError is the failure of one file
type ItemError struct {
	Index int
	Item  string
	Error error
}

// ItemFunc processes one file
type ItemFunc func(item string) error

// Execute runs fn over items
func (op *Operation) Execute(items []string, fn ItemFunc) *Result {
	if len(items) == 0 {
		return &Result{}
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(items) {
		jobs = len(items)
	}

	var result *Result
	if op.Ordered || jobs == 1 {
		result = op.executeSequential(items, fn)
	} else {
		result = op.executeParallel(items, fn, jobs)
	}
	result.Skipped = result.TotalItems - result.Succeeded - result.Failed
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Index < result.Errors[j].Index
	})
	return result
}

func (op *Operation) executeSequential(items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}

	for i, item := range items {
		op.progress(i+1, len(items), item)
		if err := fn(item); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Index: i, Item: item, Error: err})
			op.report(item, err)
			if !op.ContinueOnError {
				break
			}
			continue
		}
		result.Succeeded++
		op.report(item, nil)
	}
	op.clearProgress()

	return result
}

func (op *Operation) executeParallel(items []string, fn ItemFunc, workers int) *Result {
	result := &Result{TotalItems: len(items)}

	type work struct {
		index int
		item  string
	}
	queue := make(chan work, len(items))
	for i, item := range items {
		queue <- work{index: i, item: item}
	}
	close(queue)

	var (
		completed atomic.Int32
		succeeded atomic.Int32
		failed    atomic.Int32
		stop      atomic.Bool
		mu        sync.Mutex
		wg        sync.WaitGroup
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range queue {
				if !op.ContinueOnError && stop.Load() {
					return
				}
				err := fn(w.item)
				n := completed.Add(1)

				mu.Lock()
				op.progress(int(n), len(items), w.item)
				if err != nil {
					failed.Add(1)
					result.Errors = append(result.Errors, ItemError{Index: w.index, Item: w.item, Error: err})
					if !op.ContinueOnError {
						stop.Store(true)
					}
				} else {
					succeeded.Add(1)
				}
				op.report(w.item, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	op.clearProgress()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	return result
}

func (op *Operation) interactive() bool {
	f, ok := op.Progress.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// progress redraws a single status line on terminals
func (op *Operation) progress(done, total int, item string) {
	if op.Progress == nil || !op.interactive() {
		return
	}
	fmt.Fprintf(op.Progress, "\r\033[K[%d/%d] %s", done, total, item)
}

func (op *Operation) clearProgress() {
	if op.Progress != nil && op.interactive() {
		fmt.Fprint(op.Progress, "\r\033[K")
	}
}

// report writes one line per file when the progress sink is not a terminal
func (op *Operation) report(item string, err error) {
	if op.Progress == nil || op.interactive() {
		return
	}
	if err != nil {
		fmt.Fprintf(op.Progress, "%s: error: %v\n", item, err)
		return
	}
	fmt.Fprintf(op.Progress, "%s: ok\n", item)
}

// ExitCode maps the result to a process exit status
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0
	}
	if r.Succeeded > 0 {
		return 5 // partial
	}
	return 1
}

// Err returns nil when every file succeeded
func (r *Result) Err() error {
	switch {
	case r.Failed == 0:
		return nil
	case r.TotalItems == 1:
		return r.Errors[0].Error
	case r.Failed == r.TotalItems:
		return fmt.Errorf("all %d files failed", r.TotalItems)
	default:
		return fmt.Errorf("%d of %d files failed", r.Failed, r.TotalItems)
	}
}

// PrintSummary writes a human-readable summary of the run
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0:
		fmt.Fprintf(w, "all %d files succeeded\n", r.TotalItems)
	case r.Succeeded == 0:
		fmt.Fprintf(w, "all %d files failed\n", r.TotalItems)
	default:
		fmt.Fprintf(w, "partial success: %d succeeded, %d failed (out of %d)\n",
			r.Succeeded, r.Failed, r.TotalItems)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(w, "%d files not processed after the first failure\n", r.Skipped)
	}

	shown := r.Errors
	if len(shown) > 10 {
		fmt.Fprintf(w, "showing first 10 errors (of %d):\n", len(shown))
		shown = shown[:10]
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}
