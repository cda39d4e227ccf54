package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/convoscope/internal/analyze"
	"github.com/hurttlocker/convoscope/internal/config"
	"github.com/hurttlocker/convoscope/internal/mcp"
)

func runServe(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: convoscope serve")
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	reg, err := a.knowledgeRegistry(context.Background(), st)
	if err != nil {
		return err
	}

	s := a.cfg.Settings
	srv, err := mcp.NewServer(mcp.ServerConfig{
		Store:         st,
		Registry:      reg,
		Lexicon:       a.lex,
		Match:         s.MatchOptions(),
		Assemble:      s.AssembleConfig(),
		Strategy:      s.Intent.Strategy,
		IntentOptions: s.IntentOptions(),
		Logger:        a.log,
		Version:       version,
	})
	if err != nil {
		return err
	}

	a.log.Info("mcp", "serving over stdio", map[string]any{"db": a.cfg.DBPath.Value, "faqs": reg.Load().Len()})
	return mcp.ServeStdio(srv)
}

func runStats(args []string) error {
	asJSON := false
	for _, arg := range args {
		switch arg {
		case "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(ctx, 5)
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(map[string]any{"stats": stats, "recent_runs": runs})
	}

	heading.Printf("convoscope store: %s\n", a.cfg.DBPath.Value)
	fmt.Printf("  Runs:           %d\n", stats.RunCount)
	fmt.Printf("  Conversations:  %d (%d accepted)\n", stats.ConversationCount, stats.AcceptedCount)
	fmt.Printf("  Messages:       %d\n", stats.MessageCount)
	fmt.Printf("  Entities:       %d\n", stats.EntityCount)
	fmt.Printf("  Intent results: %d\n", stats.IntentCount)
	fmt.Printf("  FAQ entries:    %d\n", stats.FAQCount)
	fmt.Printf("  Templates:      %d\n", stats.TemplateCount)
	fmt.Printf("  DB size:        %s\n", formatBytes(stats.DBSizeBytes))
	if len(runs) > 0 {
		fmt.Println()
		heading.Println("Recent runs")
		for _, r := range runs {
			state := warn.Sprint("running")
			if r.FinishedAt != nil {
				state = good.Sprint("finished")
			}
			fmt.Printf("  %s  %s  %-10s %s  %s\n", r.ID[:8], r.StartedAt.Local().Format("2006-01-02 15:04"), r.Strategy, state, r.Source)
		}
	}
	return nil
}

func runConfig(args []string) error {
	asJSON := false
	for _, arg := range args {
		switch arg {
		case "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, err := config.ResolveConfig(globals)
	if err != nil {
		return err
	}
	apiKey := cfg.APIKey
	apiKey.Value = cfg.MaskedAPIKey()

	if asJSON {
		cfg.APIKey = apiKey
		return printJSON(cfg)
	}

	heading.Printf("Config file: %s\n", cfg.ConfigPath)
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		warn.Println("  (not found, using defaults)")
	}
	printResolved("db_path", cfg.DBPath)
	printResolved("lexicon", cfg.LexiconPath)
	printResolved("api_key", apiKey)
	fmt.Println()
	for _, key := range config.Keys {
		printResolved(key, cfg.Source(key))
	}
	return nil
}

func printResolved(key string, v config.ResolvedValue) {
	value := v.Value
	if value == "" {
		value = "(unset)"
	}
	source := string(v.Source)
	if source == "" {
		source = string(config.SourceDefault)
	}
	if v.From != "" && v.Source != config.SourceDefault {
		source += " " + v.From
	}
	fmt.Printf("  %-30s %-36s %s\n", key, value, sourceLabel(source))
}

func sourceLabel(source string) string {
	switch {
	case strings.HasPrefix(source, string(config.SourceCLI)):
		return good.Sprint(source)
	case strings.HasPrefix(source, string(config.SourceEnv)):
		return warn.Sprint(source)
	case strings.HasPrefix(source, string(config.SourceConfig)):
		return heading.Sprint(source)
	}
	return source
}

func runSchema(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: convoscope schema")
	}
	return printJSON(analyze.Schema())
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
