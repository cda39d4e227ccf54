package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/convoscope/internal/config"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/knowledge"
)

// ==================== parseGlobalFlags ====================

func TestParseGlobalFlags_DBFlag(t *testing.T) {
	globals = config.ResolveOptions{}

	args, err := parseGlobalFlags([]string{"--db", "/tmp/test.db", "match", "运费"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if globals.CLIDBPath != "/tmp/test.db" {
		t.Errorf("CLIDBPath = %q, want %q", globals.CLIDBPath, "/tmp/test.db")
	}
	if len(args) != 2 || args[0] != "match" || args[1] != "运费" {
		t.Errorf("filtered args = %v, want [match 运费]", args)
	}
}

func TestParseGlobalFlags_Equals(t *testing.T) {
	globals = config.ResolveOptions{}

	args, err := parseGlobalFlags([]string{"process", "--workers=8", "--log-level=debug", "events.csv"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if globals.CLIWorkers != "8" || globals.CLILogLevel != "debug" {
		t.Errorf("globals = %+v", globals)
	}
	if len(args) != 2 || args[0] != "process" || args[1] != "events.csv" {
		t.Errorf("filtered args = %v, want [process events.csv]", args)
	}
}

func TestParseGlobalFlags_MissingValue(t *testing.T) {
	globals = config.ResolveOptions{}
	if _, err := parseGlobalFlags([]string{"stats", "--config"}); err == nil {
		t.Fatal("expected error for --config without value")
	}
}

func TestParseGlobalFlags_LeavesCommandFlags(t *testing.T) {
	globals = config.ResolveOptions{}

	args, err := parseGlobalFlags([]string{"classify", "--strategy", "all", "a.csv"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if strings.Join(args, " ") != "classify --strategy all a.csv" {
		t.Errorf("filtered args = %v", args)
	}
}

// ==================== commands ====================

const sampleCSV = `conversation_id,sequence_no,sender_role,message_content,business_group
c1,1,2,您好，很高兴为您服务，请问有什么可以帮您,回收
c1,2,1,我想回收一台苹果手机，大概多少钱,回收
c1,3,2,请问手机的型号和内存是多少呢，我帮您估价,回收
c1,4,1,iPhone 13 128GB，成色还不错,回收
c1,5,2,这款手机回收价格大约在3000元左右，需要检测后确定,回收
c1,6,1,好的，那运费谁来承担？,回收
c1,7,2,运费由我们承担，您可以预约顺丰上门取件，感谢您的咨询,回收
c2,1,2,您好，请问有什么可以帮您,售后
c2,2,1,在吗,售后
`

// setupEnv isolates HOME, logs and the database in a temp dir and returns
// the path of a sample CSV.
func setupEnv(t *testing.T) (dir, csvPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CONVOSCOPE_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("CONVOSCOPE_LOG_LEVEL", "error")
	t.Setenv("CONVOSCOPE_KB", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CONVOSCOPE_API_KEY", "")

	globals = config.ResolveOptions{CLIDBPath: filepath.Join(dir, "convoscope.db")}

	csvPath = filepath.Join(dir, "events.csv")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	return dir, csvPath
}

func TestRunProcessWritesOutputs(t *testing.T) {
	dir, csvPath := setupEnv(t)
	outDir := filepath.Join(dir, "out")

	if err := runProcess([]string{csvPath, "--out", outDir, "--strategy", "contextual"}); err != nil {
		t.Fatalf("runProcess: %v", err)
	}

	for _, name := range []string{"conversations.json", "intents.json", "report.json"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(outDir, "intents.json"))
	if err != nil {
		t.Fatalf("reading intents: %v", err)
	}
	var intents map[string]intent.Result
	if err := json.Unmarshal(data, &intents); err != nil {
		t.Fatalf("parsing intents: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("intents = %d, want 1 (c2 is rejected)", len(intents))
	}
	if got := intents["c1"].Strategy; got != intent.StrategyContextual {
		t.Errorf("strategy = %q, want contextual", got)
	}

	var report struct {
		RunID string `json:"run_id"`
		Stats struct {
			Conversations int `json:"conversations"`
			Accepted      int `json:"accepted"`
		} `json:"stats"`
	}
	data, err = os.ReadFile(filepath.Join(outDir, "report.json"))
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("parsing report: %v", err)
	}
	if report.RunID == "" {
		t.Error("expected run id from persisted run")
	}
	if report.Stats.Conversations != 2 || report.Stats.Accepted != 1 {
		t.Errorf("stats = %+v", report.Stats)
	}

	if err := runStats([]string{"--json"}); err != nil {
		t.Fatalf("runStats: %v", err)
	}
}

func TestRunProcessNoStore(t *testing.T) {
	dir, csvPath := setupEnv(t)

	if err := runProcess([]string{csvPath, "--no-store"}); err != nil {
		t.Fatalf("runProcess: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "convoscope.db")); !os.IsNotExist(err) {
		t.Errorf("expected no database with --no-store, stat err = %v", err)
	}
}

func TestRunProcessAnalyzeNeedsKey(t *testing.T) {
	_, csvPath := setupEnv(t)
	err := runProcess([]string{csvPath, "--no-store", "--analyze"})
	if err == nil || !strings.Contains(err.Error(), "API key") {
		t.Fatalf("expected API key error, got %v", err)
	}
}

func TestRunClassifyAll(t *testing.T) {
	_, csvPath := setupEnv(t)
	if err := runClassify([]string{csvPath, "--strategy", "all", "--json"}); err != nil {
		t.Fatalf("runClassify: %v", err)
	}
	if err := runClassify([]string{csvPath, "--strategy", "bogus"}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestKBBuildLoadAndMatch(t *testing.T) {
	dir, csvPath := setupEnv(t)
	kbPath := filepath.Join(dir, "kb.json")

	if err := runKB([]string{"build", csvPath, "--out", kbPath, "--min-quality", "0"}); err != nil {
		t.Fatalf("kb build: %v", err)
	}
	if _, err := knowledge.LoadDocument(kbPath); err != nil {
		t.Fatalf("built document unreadable: %v", err)
	}

	doc := knowledge.Document{FAQs: []knowledge.FAQEntry{{
		ID:       "FAQ_001",
		Category: "服务支持类/物流问题",
		Question: knowledge.Question{Standard: "运费谁来承担？"},
		Answer:   knowledge.Answer{Standard: "运费由我们承担，顺丰上门取件。", Keywords: []string{"运费", "顺丰"}},
	}}}
	manual := filepath.Join(dir, "manual.json")
	if err := knowledge.SaveDocument(manual, doc); err != nil {
		t.Fatalf("saving document: %v", err)
	}
	if err := runKB([]string{"load", manual}); err != nil {
		t.Fatalf("kb load: %v", err)
	}
	if err := runMatch([]string{"运费谁来承担", "--json"}); err != nil {
		t.Fatalf("match from store: %v", err)
	}
	if err := runMatch([]string{"运费谁来承担", "--kb", manual, "--top", "1"}); err != nil {
		t.Fatalf("match from file: %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	setupEnv(t)
	cases := map[string]func() error{
		"process no paths":  func() error { return runProcess(nil) },
		"process bad flag":  func() error { return runProcess([]string{"--bogus"}) },
		"kb no subcommand":  func() error { return runKB(nil) },
		"kb unknown":        func() error { return runKB([]string{"export"}) },
		"match empty query": func() error { return runMatch([]string{"--json"}) },
		"serve extra args":  func() error { return runServe([]string{"x"}) },
		"config bad flag":   func() error { return runConfig([]string{"--yaml"}) },
	}
	for name, fn := range cases {
		if err := fn(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRunConfigAndSchema(t *testing.T) {
	setupEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-12345678")
	if err := runConfig(nil); err != nil {
		t.Fatalf("runConfig: %v", err)
	}
	if err := runConfig([]string{"--json"}); err != nil {
		t.Fatalf("runConfig --json: %v", err)
	}
	if err := runSchema(nil); err != nil {
		t.Fatalf("runSchema: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
