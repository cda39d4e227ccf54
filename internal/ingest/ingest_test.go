package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ==================== CSV Importer Tests ====================

func TestCSVImport_HeaderAliases(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.csv",
		"touch_id,seq_no,sender_type,send_content,send_time,group_name,servicer_name,extra\n"+
			"T1,1,客户,我的订单还没到,2024-03-01 10:00:00,售后,小王,x\n"+
			"T1,2,客服,\"您好，请提供订单号\",2024-03-01 10:01:00,售后,小王,y\n")

	imp := &CSVImporter{}
	if !imp.CanHandle(path) {
		t.Fatal("CanHandle should return true for .csv files")
	}
	records, errs, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected import errors: %v", errs)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	r := records[1]
	if r.ConversationID != "T1" || r.SequenceNo != "2" || r.SenderRole != "客服" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.ContentString() != "您好，请提供订单号" {
		t.Errorf("content = %q", r.ContentString())
	}
	if r.BusinessGroup != "售后" || r.AgentName != "小王" {
		t.Errorf("metadata not mapped: %+v", r)
	}
	if r.SourceLine != 3 || !filepath.IsAbs(r.SourceFile) {
		t.Errorf("provenance = %s:%d", r.SourceFile, r.SourceLine)
	}
}

func TestCSVImport_TSVAndNullContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.tsv",
		"Conversation-ID\tContent\tRole\n"+
			"C1\t\tuser\n"+
			"C1\thello\tagent\n")

	records, _, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Content != nil {
		t.Errorf("empty cell should be null content, got %q", *records[0].Content)
	}
	if records[1].ContentString() != "hello" {
		t.Errorf("content = %q", records[1].ContentString())
	}
}

func TestCSVImport_BlankConversationID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.csv",
		"session_id,content\n"+
			"S1,hi\n"+
			",orphan\n"+
			"S1,bye\n")

	records, errs, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(errs) != 1 || errs[0].Line != 3 {
		t.Fatalf("expected one error on line 3, got %v", errs)
	}
}

func TestCSVImport_MissingIDColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.csv", "content,role\nhi,user\n")

	_, _, err := (&CSVImporter{}).Import(context.Background(), path)
	if !errors.Is(err, ErrMissingConversationID) {
		t.Fatalf("expected ErrMissingConversationID, got %v", err)
	}
}

func TestCSVImport_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.csv", "")

	records, errs, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil || len(records) != 0 || len(errs) != 0 {
		t.Fatalf("expected nothing from empty file, got %v %v %v", records, errs, err)
	}
}

// ==================== JSON Importer Tests ====================

func TestJSONImport_Array(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.json", `[
  {"conversation_id": "C1", "sequence_no": 1, "sender_role": "user", "message_content": "在吗"},
  {"conversation_id": "C1", "sequence_no": 2, "sender_role": "agent", "message_content": null},
  "not an object",
  {"conversation_id": "", "message_content": "lost"}
]`)

	imp := &JSONImporter{}
	records, errs, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].SequenceNo != "1" {
		t.Errorf("numeric sequence should be stringified, got %q", records[0].SequenceNo)
	}
	if records[1].Content != nil {
		t.Error("null content should stay null")
	}
	if len(errs) != 2 || errs[0].Line != 3 || errs[1].Line != 4 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestJSONImport_Lines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.jsonl",
		`{"touch_id": "T9", "content": "first"}`+"\n"+
			"\n"+
			`{broken`+"\n"+
			`{"touch_id": "T9", "content": "second"}`+"\n")

	imp := &JSONImporter{}
	if !imp.CanHandle(path) {
		t.Fatal("CanHandle should return true for .jsonl files")
	}
	records, errs, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(records) != 2 || records[1].SourceLine != 4 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if len(errs) != 1 || errs[0].Line != 3 {
		t.Fatalf("expected one error on line 3, got %v", errs)
	}
}

func TestJSONImport_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `[{"conversation_id": "C1"`)

	if _, _, err := (&JSONImporter{}).Import(context.Background(), path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestJSONImport_MissingIDKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.json", `[{"content": "hi"}]`)

	_, _, err := (&JSONImporter{}).Import(context.Background(), path)
	if !errors.Is(err, ErrMissingConversationID) {
		t.Fatalf("expected ErrMissingConversationID, got %v", err)
	}
}

// ==================== Engine Tests ====================

func TestEngine_ImportPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "conversation_id,content\nC1,hi\n")
	writeFile(t, dir, "b.jsonl", `{"conversation_id":"C2","content":"yo"}`+"\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, ".hidden.csv", "conversation_id,content\nH,hidden\n")
	writeFile(t, dir, "sub/c.csv", "conversation_id,content\nC3,nested\n")

	var progress []string
	engine := NewEngine()
	records, result, err := engine.ImportPaths(context.Background(), []string{dir}, ImportOptions{
		ProgressFn: func(current, total int, file string) { progress = append(progress, filepath.Base(file)) },
	})
	if err != nil {
		t.Fatalf("ImportPaths: %v", err)
	}
	if len(records) != 2 || records[0].ConversationID != "C1" || records[1].ConversationID != "C2" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if result.FilesImported != 2 || result.Records != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
	if strings.Join(progress, ",") != "a.csv,b.jsonl" {
		t.Errorf("progress = %v", progress)
	}

	records, _, err = engine.ImportPaths(context.Background(), []string{dir}, ImportOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ImportPaths recursive: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected nested file in recursive import, got %d records", len(records))
	}
}

func TestEngine_ImportFile_SkipsUnsupportedAndOversized(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "hello")
	big := writeFile(t, dir, "big.csv", "conversation_id,content\nC1,"+strings.Repeat("x", 100)+"\n")

	engine := NewEngine()
	_, result, err := engine.ImportFile(context.Background(), txt, ImportOptions{})
	if err != nil || result.FilesSkipped != 1 {
		t.Fatalf("expected unsupported file to be skipped, got %+v %v", result, err)
	}

	_, result, err = engine.ImportFile(context.Background(), big, ImportOptions{MaxFileSize: 10})
	if err != nil || result.FilesSkipped != 1 || len(result.Errors) != 1 {
		t.Fatalf("expected oversized file to be skipped, got %+v %v", result, err)
	}
}

func TestEngine_FatalErrorAborts(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.csv", "content\nhi\n")

	_, _, err := NewEngine().ImportPaths(context.Background(), []string{bad}, ImportOptions{})
	if !errors.Is(err, ErrMissingConversationID) {
		t.Fatalf("expected ErrMissingConversationID, got %v", err)
	}
}

func TestFormatImportResult(t *testing.T) {
	r := &ImportResult{FilesScanned: 2, FilesImported: 1, FilesSkipped: 1, Records: 10,
		Errors: []ImportError{{File: "a.csv", Line: 3, Message: "blank conversation id"}}}
	out := FormatImportResult(r)
	for _, want := range []string{"2 scanned", "Records: 10", "a.csv:3: blank conversation id"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
