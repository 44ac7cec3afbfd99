package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zstd"
)

const (
	exportPrefix    = "wall_export_"
	exportStampFmt  = "20060102_150405"
	jsonExt         = ".json"
	zstdExt         = ".json.zst"
	exportFileGlob  = exportPrefix + "*{" + jsonExt + "," + zstdExt + "}"
	maxNameAttempts = 100
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ListExports returns the export files in dir, newest first. A missing
// directory has no exports.
func ListExports(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), exportFileGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports in %s: %w", dir, err)
	}

	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(dir, m))
	}
	return files, nil
}

// PruneExports removes all but the newest keepLast export files in dir and
// returns the removed paths.
func PruneExports(dir string, keepLast int) ([]string, error) {
	if keepLast <= 0 {
		return nil, nil
	}

	files, err := ListExports(dir)
	if err != nil {
		return nil, err
	}
	if len(files) <= keepLast {
		return nil, nil
	}

	var removed []string
	for _, f := range files[keepLast:] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove old export %s: %w", f, err)
		}
		removed = append(removed, f)
	}
	return removed, nil
}

// exportPath returns a fresh export file name in dir for time t.
func exportPath(dir string, t time.Time, compress bool) (string, error) {
	ext := jsonExt
	if compress {
		ext = zstdExt
	}
	stem := exportPrefix + t.Format(exportStampFmt)

	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := stem
		if attempt > 1 {
			name += "_" + strconv.Itoa(attempt)
		}
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to find a free export name for %s in %s", stem, dir)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wall_export_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), nil
}

// decompressIfNeeded inflates zstd data, detected by magic number or extension.
func decompressIfNeeded(path string, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) && !strings.HasSuffix(path, ".zst") {
		return data, nil
	}

	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	out, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
