package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// ErrMissingConversationID is returned when a file has no column (or key)
// that maps to the conversation id.
var ErrMissingConversationID = errors.New("no conversation id column")

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file. Row-level problems are returned as
	// ImportErrors alongside the records that did parse; the error is
	// reserved for problems that make the whole file unusable.
	Import(ctx context.Context, path string) ([]dialog.RawRecord, []ImportError, error)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned  int
	FilesImported int
	FilesSkipped  int
	Records       int
	Errors        []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.Records += other.Records
	r.Errors = append(r.Errors, other.Errors...)
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Line    int
	Message string
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Recursive   bool
	MaxFileSize int64 // bytes, default 100MB
	ProgressFn  func(current, total int, file string)
}

// DefaultMaxFileSize is 100MB. Event logs are larger than note files.
const DefaultMaxFileSize = 100 * 1024 * 1024
