package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// CSVImporter handles .csv and .tsv files.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV file into raw records.
// The first row is the header; columns are matched through the alias
// table and unknown columns are ignored. An empty content cell is read as
// null content.
func (c *CSVImporter) Import(ctx context.Context, path string) ([]dialog.RawRecord, []ImportError, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV. Leading-space trimming would swallow empty
	// tab-separated cells.
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	} else {
		reader.TrimLeadingSpace = true
	}

	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CSV header %s: %w", path, err)
	}

	fields := make([]field, len(header))
	hasID := false
	for i, h := range header {
		fields[i] = columnField(h)
		hasID = hasID || fields[i] == fieldConversationID
	}
	if !hasID {
		return nil, nil, fmt.Errorf("%s: %w (header: %s)", path, ErrMissingConversationID, strings.Join(header, ","))
	}

	var (
		records []dialog.RawRecord
		errs    []ImportError
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, nil, fmt.Errorf("reading CSV %s: %w", path, err)
			}
			errs = append(errs, ImportError{File: absPath, Line: perr.StartLine, Message: perr.Err.Error()})
			continue
		}
		line, _ := reader.FieldPos(0)

		rec := dialog.RawRecord{SourceFile: absPath, SourceLine: line}
		empty := true
		for j, val := range row {
			if j >= len(fields) || fields[j] == fieldUnknown {
				continue
			}
			if strings.TrimSpace(val) != "" {
				empty = false
			}
			if fields[j] == fieldContent && val == "" {
				setField(&rec, fieldContent, nil)
				continue
			}
			setField(&rec, fields[j], val)
		}
		if empty {
			continue
		}
		if rec.ConversationID == "" {
			errs = append(errs, ImportError{File: absPath, Line: line, Message: "blank conversation id"})
			continue
		}
		records = append(records, rec)
	}

	return records, errs, nil
}
