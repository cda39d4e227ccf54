package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hurttlocker/convoscope/internal/knowledge"
	"github.com/hurttlocker/convoscope/internal/pipeline"
	"github.com/hurttlocker/convoscope/internal/store"
)

const defaultKBOut = "kb.json"

func runKB(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: convoscope kb <build|load> [arguments]")
	}
	switch args[0] {
	case "build":
		return runKBBuild(args[1:])
	case "load":
		return runKBLoad(args[1:])
	default:
		return fmt.Errorf("unknown kb subcommand: %s (supported: build, load)", args[0])
	}
}

func runKBBuild(args []string) error {
	var paths []string
	outPath := ""
	minQuality := -1.0
	recursive := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--out" && i+1 < len(args):
			i++
			outPath = args[i]
		case strings.HasPrefix(args[i], "--out="):
			outPath = strings.TrimPrefix(args[i], "--out=")
		case args[i] == "--min-quality" && i+1 < len(args):
			i++
			v, err := strconv.ParseFloat(args[i], 64)
			if err != nil || v < 0 || v > 1 {
				return fmt.Errorf("--min-quality must be between 0 and 1")
			}
			minQuality = v
		case args[i] == "--recursive" || args[i] == "-r":
			recursive = true
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			paths = append(paths, args[i])
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: convoscope kb build <path...> [--out kb.json] [--min-quality 0.7] [--recursive]")
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	if outPath == "" {
		outPath = a.cfg.Settings.Knowledge.Path
	}
	if outPath == "" {
		outPath = defaultKBOut
	}

	records, err := a.importRecords(ctx, paths, recursive)
	if err != nil {
		return err
	}

	s := a.cfg.Settings
	runner, err := pipeline.NewRunner(a.lex, pipelineConfig(s, s.Intent.Strategy), pipeline.WithLogger(a.log))
	if err != nil {
		return err
	}
	out, err := runner.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	opts := s.BuildOptions()
	if minQuality >= 0 {
		opts.MinQuality = minQuality
	}
	doc := knowledge.NewBuilder(a.lex, nil, opts).Build(out.Conversations())
	if err := knowledge.SaveDocument(outPath, doc); err != nil {
		return err
	}

	a.log.Info("knowledge", "knowledge base built", map[string]any{
		"faqs": len(doc.FAQs), "templates": len(doc.Templates), "path": outPath,
	})
	good.Printf("Built %d FAQ entries and %d templates from %d conversations\n", len(doc.FAQs), len(doc.Templates), out.Stats.Accepted)
	fmt.Printf("Wrote %s\n", outPath)
	return nil
}

func runKBLoad(args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: convoscope kb load <kb.json|kb.yaml>")
	}

	doc, err := knowledge.LoadDocument(args[0])
	if err != nil {
		return err
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

	if err := st.ReplaceKnowledge(context.Background(), doc); err != nil {
		return err
	}
	good.Printf("Loaded %d FAQ entries and %d templates into %s\n", len(doc.FAQs), len(doc.Templates), a.cfg.DBPath.Value)
	return nil
}

func runMatch(args []string) error {
	var words []string
	kbPath := ""
	topN := 0
	asJSON := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--kb" && i+1 < len(args):
			i++
			kbPath = args[i]
		case strings.HasPrefix(args[i], "--kb="):
			kbPath = strings.TrimPrefix(args[i], "--kb=")
		case args[i] == "--top" && i+1 < len(args):
			i++
			fmt.Sscanf(args[i], "%d", &topN)
		case strings.HasPrefix(args[i], "--top="):
			fmt.Sscanf(strings.TrimPrefix(args[i], "--top="), "%d", &topN)
		case args[i] == "--json":
			asJSON = true
		case strings.HasPrefix(args[i], "--"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			words = append(words, args[i])
		}
	}
	query := strings.TrimSpace(strings.Join(words, " "))
	if query == "" {
		return fmt.Errorf("usage: convoscope match <query> [--kb path] [--top n] [--json]")
	}

	opts := globals
	opts.CLIKnowledge = kbPath
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.knowledgeRegistry(context.Background(), nil)
	if err != nil {
		return err
	}
	matchOpts := a.cfg.Settings.MatchOptions()
	if topN > 0 {
		matchOpts.TopN = topN
	}
	res := knowledge.NewMatcher(reg, matchOpts).Match(query)

	if asJSON {
		return printJSON(map[string]any{"result": res, "answer": knowledge.FormatAnswer(res)})
	}
	printMatch(res)
	return nil
}

// knowledgeRegistry loads the knowledge base from the configured document,
// or from st (opened on demand when nil) when no document is configured.
func (a *app) knowledgeRegistry(ctx context.Context, st store.Store) (*knowledge.Registry, error) {
	var doc knowledge.Document
	if path := a.cfg.Settings.Knowledge.Path; path != "" {
		d, err := knowledge.LoadDocument(path)
		if err != nil {
			return nil, err
		}
		doc = d
	} else {
		if st == nil {
			s, err := a.openStore()
			if err != nil {
				return nil, err
			}
			defer s.Close()
			st = s
		}
		d, err := st.LoadKnowledge(ctx)
		if err != nil {
			return nil, err
		}
		doc = d
	}
	if len(doc.FAQs) == 0 {
		a.log.Warn("knowledge", "knowledge base is empty", map[string]any{"error": knowledge.ErrNoKnowledgeBase.Error()})
	}
	return knowledge.NewRegistry(knowledge.NewBase(doc, a.lex.MatcherWords())), nil
}

func printMatch(res knowledge.MatchResult) {
	switch res.Status {
	case knowledge.StatusNoKnowledgeBase:
		bad.Println("No knowledge base loaded. Run 'convoscope kb load <kb.json>' or pass --kb.")
		return
	case knowledge.StatusEmptyQuery:
		warn.Println("The query has no searchable keywords.")
		return
	}

	heading.Println("Answer")
	fmt.Println(knowledge.FormatAnswer(res))
	if len(res.Matches) == 0 {
		return
	}
	fmt.Println()
	heading.Println("Matches")
	for i, m := range res.Matches {
		fmt.Printf("  %d. [%s] %.3f %s\n", i+1, m.FAQID, m.Score, m.Entry.Question.Standard)
		if len(m.MatchedKeywords) > 0 {
			fmt.Printf("     keywords: %s\n", strings.Join(m.MatchedKeywords, ", "))
		}
		for _, t := range m.Templates {
			fmt.Printf("     template: %s\n", t.Content)
		}
	}
}
