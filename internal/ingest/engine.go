package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// Engine dispatches files to the importer that can handle them.
type Engine struct {
	importers []Importer
}

// NewEngine returns an engine with the CSV and JSON importers.
func NewEngine() *Engine {
	return &Engine{importers: []Importer{&CSVImporter{}, &JSONImporter{}}}
}

func (e *Engine) importerFor(path string) Importer {
	for _, imp := range e.importers {
		if imp.CanHandle(path) {
			return imp
		}
	}
	return nil
}

// ImportPaths imports every file or directory in paths, in order.
// Records keep file order. Fatal per-file problems (unreadable file, no
// conversation id column) abort the import.
func (e *Engine) ImportPaths(ctx context.Context, paths []string, opts ImportOptions) ([]dialog.RawRecord, *ImportResult, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := e.collect(p, opts.Recursive)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, found...)
	}

	result := &ImportResult{}
	var records []dialog.RawRecord
	for i, path := range files {
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), path)
		}
		recs, sub, err := e.ImportFile(ctx, path, opts)
		if err != nil {
			return nil, nil, err
		}
		result.Add(sub)
		records = append(records, recs...)
	}
	return records, result, nil
}

// ImportFile imports a single file.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ImportOptions) ([]dialog.RawRecord, *ImportResult, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	result := &ImportResult{FilesScanned: 1}

	imp := e.importerFor(path)
	if imp == nil {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{File: path, Message: "unsupported file format"})
		return nil, result, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > opts.MaxFileSize {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{
			File:    path,
			Message: fmt.Sprintf("file exceeds max size (%d > %d bytes)", info.Size(), opts.MaxFileSize),
		})
		return nil, result, nil
	}

	records, errs, err := imp.Import(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("importing %s: %w", path, err)
	}
	result.FilesImported++
	result.Records = len(records)
	result.Errors = append(result.Errors, errs...)
	return records, result, nil
}

// collect lists supported files under dir in lexical order, skipping
// hidden entries.
func (e *Engine) collect(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if e.importerFor(path) != nil {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// FormatImportResult returns a human-readable summary of an import.
func FormatImportResult(r *ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files: %d scanned, %d imported, %d skipped\n", r.FilesScanned, r.FilesImported, r.FilesSkipped)
	fmt.Fprintf(&b, "Records: %d\n", r.Records)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %d\n", len(r.Errors))
		for i, e := range r.Errors {
			if i == 5 {
				fmt.Fprintf(&b, "  ... and %d more\n", len(r.Errors)-5)
				break
			}
			fmt.Fprintf(&b, "  %s\n", e.Error())
		}
	}
	return b.String()
}
