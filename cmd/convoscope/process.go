package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hurttlocker/convoscope/internal/analyze"
	"github.com/hurttlocker/convoscope/internal/config"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/pipeline"
)

const strategyAll = "all"

func runProcess(args []string) error {
	var paths []string
	outDir := ""
	strategy := ""
	analyzeOn := false
	noStore := false
	recursive := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--out" && i+1 < len(args):
			i++
			outDir = args[i]
		case strings.HasPrefix(args[i], "--out="):
			outDir = strings.TrimPrefix(args[i], "--out=")
		case args[i] == "--strategy" && i+1 < len(args):
			i++
			strategy = strings.ToLower(strings.TrimSpace(args[i]))
		case strings.HasPrefix(args[i], "--strategy="):
			strategy = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(args[i], "--strategy=")))
		case args[i] == "--analyze":
			analyzeOn = true
		case args[i] == "--no-store":
			noStore = true
		case args[i] == "--recursive" || args[i] == "-r":
			recursive = true
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			paths = append(paths, args[i])
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: convoscope process <path...> [--out dir] [--strategy name] [--analyze] [--no-store] [--recursive]")
	}

	opts := globals
	opts.CLIStrategy = strategy
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	records, err := a.importRecords(ctx, paths, recursive)
	if err != nil {
		return err
	}

	s := a.cfg.Settings
	runOpts := []pipeline.Option{
		pipeline.WithLogger(a.log),
		pipeline.WithSource(strings.Join(paths, ",")),
	}
	if !noStore {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		runOpts = append(runOpts, pipeline.WithStore(st))
	}
	if analyzeOn || s.Analyze.Enabled {
		an, err := newAnalyzer(a.cfg)
		if err != nil {
			return err
		}
		runOpts = append(runOpts, pipeline.WithAnalyzer(an))
	}

	runner, err := pipeline.NewRunner(a.lex, pipelineConfig(s, s.Intent.Strategy), runOpts...)
	if err != nil {
		return err
	}
	out, err := runner.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	if outDir != "" {
		if err := writeOutputs(outDir, out); err != nil {
			return err
		}
	}
	printRunSummary(out, outDir)
	return nil
}

func pipelineConfig(s config.Settings, strategy string) pipeline.Config {
	return pipeline.Config{
		Assemble:       s.AssembleConfig(),
		Quality:        s.QualityConfig(),
		Strategy:       strategy,
		IntentOptions:  s.IntentOptions(),
		Workers:        s.Workers,
		AnalyzeTimeout: s.Analyze.Timeout,
	}
}

func newAnalyzer(cfg config.ResolvedConfig) (analyze.Analyzer, error) {
	if cfg.APIKey.Value == "" {
		return nil, fmt.Errorf("analysis needs an API key: set OPENAI_API_KEY or api_key in %s", cfg.ConfigPath)
	}
	an, err := analyze.NewOpenAI(analyze.OpenAIConfig{
		APIKey:     cfg.APIKey.Value,
		BaseURL:    cfg.Settings.Analyze.BaseURL,
		Model:      cfg.Settings.Analyze.Model,
		MaxRetries: cfg.Settings.Analyze.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return an, nil
}

// runReport is the content of report.json.
type runReport struct {
	RunID    string                      `json:"run_id,omitempty"`
	Stats    pipeline.Stats              `json:"stats"`
	Intents  intent.Report               `json:"intent_report"`
	Analyses map[string]analyze.Analysis `json:"analyses,omitempty"`
}

func writeOutputs(dir string, out *pipeline.Output) error {
	intents := make(map[string]intent.Result, len(out.Items))
	analyses := map[string]analyze.Analysis{}
	for _, it := range out.Items {
		if it.Intent != nil {
			intents[it.Conversation.ID] = *it.Intent
		}
		if it.Analysis != nil {
			analyses[it.Conversation.ID] = *it.Analysis
		}
	}

	files := []struct {
		name string
		v    any
	}{
		{"conversations.json", out.Conversations()},
		{"intents.json", intents},
		{"report.json", runReport{RunID: out.RunID, Stats: out.Stats, Intents: out.Report, Analyses: analyses}},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func printRunSummary(out *pipeline.Output, outDir string) {
	st := out.Stats
	fmt.Println()
	heading.Println("Run summary")
	if out.RunID != "" {
		fmt.Printf("  Run:            %s\n", out.RunID)
	}
	fmt.Printf("  Conversations:  %d\n", st.Conversations)
	good.Printf("  Accepted:       %d (%.1f%%)\n", st.Accepted, st.AcceptanceRate()*100)
	if st.Rejected > 0 {
		warn.Printf("  Rejected:       %d\n", st.Rejected)
		for _, reason := range sortedKeys(st.Rejections) {
			fmt.Printf("    %-24s %d\n", reason, st.Rejections[reason])
		}
	}
	if st.Diagnostics.Malformed > 0 || st.Diagnostics.UnparseableTimestamps > 0 {
		warn.Printf("  Malformed:      %d records, %d unparseable timestamps\n", st.Diagnostics.Malformed, st.Diagnostics.UnparseableTimestamps)
	}
	if st.Analyzed > 0 {
		fmt.Printf("  Analyzed:       %d", st.Analyzed)
		if st.AnalyzeFailures > 0 {
			bad.Printf(" (%d failed)", st.AnalyzeFailures)
		}
		fmt.Println()
	}
	printReport(out.Report)
	fmt.Printf("  Duration:       %s\n", st.Duration.Round(time.Millisecond))
	if outDir != "" {
		fmt.Printf("  Output:         %s\n", outDir)
	}
}

func printReport(r intent.Report) {
	fmt.Println()
	heading.Printf("Intent report (%s)\n", r.Strategy)
	fmt.Printf("  Classified:     %d, mean confidence %.3f, other-query %.1f%%\n", r.Total, r.MeanConfidence, r.OtherQueryRatio*100)
	fmt.Printf("  Confidence:     high %d / medium %d / low %d\n",
		r.Buckets[intent.BucketHigh], r.Buckets[intent.BucketMedium], r.Buckets[intent.BucketLow])
	if len(r.Scenarios) > 0 {
		fmt.Println("  Scenarios:")
		for _, c := range r.Scenarios {
			fmt.Printf("    %-20s %5d  %5.1f%%\n", c.Name, c.Count, c.Share*100)
		}
	}
	if len(r.Intents) > 0 {
		fmt.Println("  Top intents:")
		for _, c := range r.Intents[:min(10, len(r.Intents))] {
			fmt.Printf("    %-20s %5d  %5.1f%%\n", c.Name, c.Count, c.Share*100)
		}
	}
}

func runClassify(args []string) error {
	var paths []string
	strategy := ""
	asJSON := false
	recursive := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--strategy" && i+1 < len(args):
			i++
			strategy = strings.ToLower(strings.TrimSpace(args[i]))
		case strings.HasPrefix(args[i], "--strategy="):
			strategy = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(args[i], "--strategy=")))
		case args[i] == "--json":
			asJSON = true
		case args[i] == "--recursive" || args[i] == "-r":
			recursive = true
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			paths = append(paths, args[i])
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: convoscope classify <path...> [--strategy keyword|cascade|contextual|all] [--json] [--recursive]")
	}

	opts := globals
	if strategy != strategyAll {
		opts.CLIStrategy = strategy
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	records, err := a.importRecords(ctx, paths, recursive)
	if err != nil {
		return err
	}

	strategies := []string{a.cfg.Settings.Intent.Strategy}
	if strategy == strategyAll {
		strategies = intent.Strategies
	}

	reports := make([]intent.Report, 0, len(strategies))
	for _, name := range strategies {
		runner, err := pipeline.NewRunner(a.lex, pipelineConfig(a.cfg.Settings, name), pipeline.WithLogger(a.log))
		if err != nil {
			return err
		}
		out, err := runner.Run(ctx, records)
		if err != nil {
			return fmt.Errorf("classifying with %s: %w", name, err)
		}
		reports = append(reports, out.Report)
	}

	if len(reports) == 1 {
		if asJSON {
			return printJSON(reports[0])
		}
		printReport(reports[0])
		return nil
	}

	comparison := intent.Compare(reports...)
	if asJSON {
		return printJSON(map[string]any{"reports": reports, "comparison": comparison})
	}
	printComparison(comparison)
	return nil
}

func printComparison(c intent.Comparison) {
	heading.Println("Strategy comparison")
	fmt.Printf("  %-26s", "metric")
	for _, s := range c.Strategies {
		fmt.Printf(" %12s", s)
	}
	fmt.Println()
	for _, row := range c.Rows {
		fmt.Printf("  %-26s", row.Metric)
		for _, v := range row.Values {
			if v == float64(int(v)) {
				fmt.Printf(" %12d", int(v))
			} else {
				fmt.Printf(" %12.3f", v)
			}
		}
		fmt.Println()
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
