package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Format selects how command results are written
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// emptyCell stands in for blank table cells so columns stay aligned
const emptyCell = "-"

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool // compact JSON, tab-separated tables
}

// Renderer writes command results in the configured format
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a renderer writing to w
func NewRenderer(w io.Writer, opts Options) *Renderer {
	return &Renderer{writer: w, opts: opts}
}

// Structured renders data as JSON or YAML. It reports false for
// FormatTable, leaving the caller to print a human summary.
func (r *Renderer) Structured(data any) (bool, error) {
	switch r.opts.Format {
	case FormatJSON:
		return true, r.RenderJSON(data)
	case FormatYAML:
		return true, r.RenderYAML(data)
	default:
		return false, nil
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data any) error {
	enc := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data any) error {
	enc := yaml.NewEncoder(r.writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// RenderList writes one item per line
func (r *Renderer) RenderList(items []string) error {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(r.writer, b.String())
	return err
}

// RenderTable writes rows under headers. Nothing is written for an empty
// table. Porcelain output is tab-separated with no rule line.
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	if r.opts.Porcelain {
		for _, line := range append([][]string{headers}, rows...) {
			b.WriteString(strings.Join(cells(line, len(headers)), "\t"))
			b.WriteByte('\n')
		}
		_, err := io.WriteString(r.writer, b.String())
		return err
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range cells(row, len(headers)) {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}

	writeRow(&b, headers, widths)
	writeRow(&b, rule, widths)
	for _, row := range rows {
		writeRow(&b, cells(row, len(headers)), widths)
	}
	_, err := io.WriteString(r.writer, b.String())
	return err
}

// cells pads or truncates row to n columns, filling blanks
func cells(row []string, n int) []string {
	out := make([]string, n)
	for i := range out {
		if i < len(row) && row[i] != "" {
			out[i] = row[i]
		} else {
			out[i] = emptyCell
		}
	}
	return out
}

// writeRow pads every column but the last
func writeRow(b *strings.Builder, row []string, widths []int) {
	for i, cell := range row {
		if i == len(row)-1 {
			b.WriteString(cell)
			break
		}
		fmt.Fprintf(b, "%s%s  ", cell, strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
	}
	b.WriteByte('\n')
}
