package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lherron/kindwall/internal/store"
)

// Import loads the snapshot at path and merges it into the store. Only a
// *FormatError (or a bad importer) is returned as an error; per-record
// failures are counted in the statistics.
func Import(s *store.Store, path string, opts MergeOptions) (*MergeStatistics, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	merger, err := NewMerger(s, opts)
	if err != nil {
		return nil, err
	}

	return merger.Merge(doc)
}

// Load reads, decompresses, parses and checks a snapshot file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: ReasonRead, Err: err}
	}
	return Parse(path, data)
}

// Parse decodes snapshot bytes; path is only used in errors.
func Parse(path string, data []byte) (*Document, error) {
	data, err := decompressIfNeeded(path, data)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: ReasonDecompress, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Path: path, Reason: ReasonParse, Err: err}
	}

	if err := recordValidate.Struct(&doc); err != nil {
		return nil, &FormatError{Path: path, Reason: ReasonValidate, Err: err}
	}

	if major(doc.Version) != major(FormatVersion) {
		return nil, &FormatError{
			Path:   path,
			Reason: ReasonVersion,
			Err:    fmt.Errorf("unsupported version %q, expected %s.x", doc.Version, major(FormatVersion)),
		}
	}

	return &doc, nil
}

// Verify checks that a snapshot file round-trips canonically and that its
// stored revision matches its content.
func Verify(inputPath string) (*VerifyResult, error) {
	doc, err := Load(inputPath)
	if err != nil {
		return nil, err
	}

	origRev := doc.Metadata.SnapshotRev
	computed, err := ContentRev(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compute revision: %w", err)
	}

	canonicalOrig, err := CanonicalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize original: %w", err)
	}

	reloaded, err := Parse(inputPath, canonicalOrig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse canonicalized snapshot: %w", err)
	}

	canonicalReloaded, err := CanonicalJSON(reloaded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-canonicalize: %w", err)
	}

	result := &VerifyResult{
		InputPath:   inputPath,
		SnapshotRev: origRev,
		ComputedRev: computed,
	}

	switch {
	case string(canonicalOrig) != string(canonicalReloaded):
		result.Message = fmt.Sprintf("round-trip failed: %s", findFirstDiff(string(canonicalOrig), string(canonicalReloaded)))
	case origRev == "":
		result.Valid = true
		result.Message = "snapshot is canonical (no snapshot_rev recorded)"
	case origRev != computed:
		result.Message = fmt.Sprintf("snapshot_rev mismatch: recorded %s, content is %s", origRev, computed)
	default:
		result.Valid = true
		result.Message = "snapshot is canonical"
	}

	return result, nil
}

func major(version string) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

func findFirstDiff(a, b string) string {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			start := i - 20
			if start < 0 {
				start = 0
			}
			end := i + 20
			if end > minLen {
				end = minLen
			}
			return fmt.Sprintf("difference at byte %d: ...%s... vs ...%s...",
				i, strings.ReplaceAll(a[start:end], "\n", "\\n"),
				strings.ReplaceAll(b[start:end], "\n", "\\n"))
		}
	}

	if len(a) != len(b) {
		return fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))
	}

	return "unknown difference"
}
