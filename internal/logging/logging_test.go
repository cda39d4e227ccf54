package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapRecordsModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.Info("pipeline", "run finished", map[string]any{"accepted": 3})
	l.Error("mcp", "tool failed", map[string]any{"error": errors.New("boom")})
	l.Debug("pipeline", "no details", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["module"] != "pipeline" {
		t.Fatalf("module = %v", ctx["module"])
	}
	details, ok := ctx["details"].(map[string]any)
	if !ok || details["accepted"] != 3 {
		t.Fatalf("details = %#v", ctx["details"])
	}
	if entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entries[1].ContextMap())
	}
	if _, ok := entries[2].ContextMap()["details"]; ok {
		t.Fatal("nil details should be omitted")
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Warn("ingest", "row skipped", map[string]any{"line": 4})
	l.Sync()

	f, err := os.Open(l.FilePath())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("log file is empty")
	}
	var entry map[string]any
	if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "WARN" || entry["message"] != "row skipped" || entry["module"] != "ingest" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("x", "y", nil)
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
