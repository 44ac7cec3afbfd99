package snapshot

import "fmt"

// Format error reasons
const (
	ReasonRead       = "read"
	ReasonDecompress = "decompress"
	ReasonParse      = "parse"
	ReasonValidate   = "validate"
	ReasonVersion    = "version"
)

// FormatError is returned when a snapshot cannot be read, parsed or is of an
// unsupported version. Nothing has been merged when it is returned.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid snapshot %s (%s): %v", e.Path, e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// RecordError describes one snapshot record that could not be merged. It is
// counted as a conflict and never returned from Merge.
type RecordError struct {
	Entity   Entity
	OriginID int64
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Entity, e.OriginID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
