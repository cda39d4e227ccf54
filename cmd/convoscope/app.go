package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/hurttlocker/convoscope/internal/config"
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/ingest"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/logging"
	"github.com/hurttlocker/convoscope/internal/store"
)

// app bundles what every command needs: the resolved configuration, the
// lexicon and the logger.
type app struct {
	cfg config.ResolvedConfig
	lex lexicon.Bundle
	log *logging.ZapLogger
}

func newApp(opts config.ResolveOptions) (*app, error) {
	cfg, err := config.ResolveConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}

	lex := lexicon.Default()
	if path := cfg.LexiconPath.Value; path != "" {
		lex, err = lexicon.Load(path)
		if err != nil {
			return nil, err
		}
	}

	log, err := logging.New(logging.Options{
		Dir:     cfg.Settings.Log.Dir,
		Level:   cfg.Settings.Log.Level,
		Console: cfg.Settings.Log.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	return &app{cfg: cfg, lex: lex, log: log}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// importRecords reads every path and prints per-file progress and the
// import summary to stderr.
func (a *app) importRecords(ctx context.Context, paths []string, recursive bool) ([]dialog.RawRecord, error) {
	engine := ingest.NewEngine()
	opts := ingest.ImportOptions{
		Recursive: recursive,
		ProgressFn: func(current, total int, file string) {
			fmt.Fprintf(os.Stderr, "  [%d/%d] %s\n", current, total, file)
		},
	}
	records, result, err := engine.ImportPaths(ctx, paths, opts)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(os.Stderr, ingest.FormatImportResult(result))
	for _, e := range result.Errors {
		a.log.Warn("ingest", "import error", map[string]any{"file": e.File, "line": e.Line, "message": e.Message})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records imported from %v", paths)
	}
	return records, nil
}

// writeJSON writes v as indented JSON, creating parent directories.
func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	bad     = color.New(color.FgRed)
)
