package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// JSONImporter handles .json files holding an array of row objects, and
// .jsonl/.ndjson files holding one row object per line.
type JSONImporter struct{}

// CanHandle returns true for JSON and JSON Lines file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return true
	}
	return false
}

// Import parses a JSON or JSON Lines file into raw records. For a JSON
// array the record line is the 1-based element index.
func (j *JSONImporter) Import(ctx context.Context, path string) ([]dialog.RawRecord, []ImportError, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	content := bytes.TrimSpace(data)
	if len(content) == 0 {
		return nil, nil, nil
	}

	var objects []map[string]any
	var lines []int
	var errs []ImportError

	if content[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(content, &rows); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
		}
		for i, raw := range rows {
			var obj map[string]any
			if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
				errs = append(errs, ImportError{File: absPath, Line: i + 1, Message: "element is not an object"})
				continue
			}
			objects = append(objects, obj)
			lines = append(lines, i+1)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(content))
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		n := 0
		for sc.Scan() {
			n++
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal(line, &obj); err != nil || obj == nil {
				msg := "line is not a JSON object"
				if err != nil {
					msg = err.Error()
				}
				errs = append(errs, ImportError{File: absPath, Line: n, Message: msg})
				continue
			}
			objects = append(objects, obj)
			lines = append(lines, n)
		}
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	hasID := false
	var records []dialog.RawRecord
	for i, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rec := dialog.RawRecord{SourceFile: absPath, SourceLine: lines[i]}
		for key, val := range obj {
			f := columnField(key)
			if f == fieldUnknown {
				continue
			}
			hasID = hasID || f == fieldConversationID
			setField(&rec, f, val)
		}
		if rec.ConversationID == "" {
			errs = append(errs, ImportError{File: absPath, Line: lines[i], Message: "blank conversation id"})
			continue
		}
		records = append(records, rec)
	}
	if len(objects) > 0 && !hasID {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrMissingConversationID)
	}

	return records, errs, nil
}
