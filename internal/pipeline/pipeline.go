// Package pipeline wires the conversation stages together. Records are
// grouped by conversation, each conversation is mapped through assembly,
// entity extraction, quality filtering, intent classification and the
// optional analyzer on a bounded worker pool, and a sequential reduce
// builds the run statistics.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/convoscope/internal/analyze"
	"github.com/hurttlocker/convoscope/internal/assemble"
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/extract"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/logging"
	"github.com/hurttlocker/convoscope/internal/quality"
	"github.com/hurttlocker/convoscope/internal/store"
)

const module = "pipeline"

// Config holds the stage settings of a Runner.
type Config struct {
	Assemble       assemble.Config
	Quality        quality.Config
	Strategy       string
	IntentOptions  []intent.Option
	Workers        int
	AnalyzeTimeout time.Duration
}

// DefaultConfig returns the default stage settings.
func DefaultConfig() Config {
	return Config{
		Assemble:       assemble.DefaultConfig(),
		Quality:        quality.DefaultConfig(),
		Strategy:       intent.StrategyCascade,
		Workers:        4,
		AnalyzeTimeout: 30 * time.Second,
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithAnalyzer runs a for every accepted conversation.
func WithAnalyzer(a analyze.Analyzer) Option {
	return func(r *Runner) { r.analyzer = a }
}

// WithStore persists every run to st.
func WithStore(st store.Store) Option {
	return func(r *Runner) { r.store = st }
}

// WithLogger sets the logger. Default: logging.Nop().
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithSource labels persisted runs with the input description.
func WithSource(source string) Option {
	return func(r *Runner) { r.source = source }
}

// Runner executes the conversation pipeline. It is safe to reuse across
// runs; every stage holds only immutable configuration.
type Runner struct {
	cfg        Config
	assembler  *assemble.Assembler
	extractor  *extract.Extractor
	filter     *quality.Filter
	classifier intent.Classifier
	analyzer   analyze.Analyzer
	store      store.Store
	log        logging.Logger
	source     string
}

// NewRunner builds the stages from lex and cfg.
func NewRunner(lex lexicon.Bundle, cfg Config, opts ...Option) (*Runner, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = DefaultConfig().AnalyzeTimeout
	}
	if cfg.Strategy == "" {
		cfg.Strategy = intent.StrategyCascade
	}

	extractor, err := extract.New(lex.EntityPatterns)
	if err != nil {
		return nil, fmt.Errorf("building entity extractor: %w", err)
	}
	classifier, err := intent.New(cfg.Strategy, lex, cfg.IntentOptions...)
	if err != nil {
		return nil, fmt.Errorf("building intent classifier: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		assembler:  assemble.New(lex, cfg.Assemble),
		extractor:  extractor,
		filter:     quality.New(cfg.Quality, lex.Domain),
		classifier: classifier,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Item is the pipeline result for one conversation.
type Item struct {
	Conversation *dialog.Conversation `json:"conversation"`
	Intent       *intent.Result       `json:"intent,omitempty"`
	Analysis     *analyze.Analysis    `json:"analysis,omitempty"`
	AnalyzeError string               `json:"analyze_error,omitempty"`
}

// Output is everything a run produced.
type Output struct {
	RunID  string        `json:"run_id,omitempty"`
	Items  []Item        `json:"items"`
	Stats  Stats         `json:"stats"`
	Report intent.Report `json:"intent_report"`
}

// Conversations returns the assembled conversations in input order.
func (o *Output) Conversations() []*dialog.Conversation {
	out := make([]*dialog.Conversation, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, it.Conversation)
	}
	return out
}

// Results returns the intent results of accepted conversations.
func (o *Output) Results() []intent.Result {
	var out []intent.Result
	for _, it := range o.Items {
		if it.Intent != nil {
			out = append(out, *it.Intent)
		}
	}
	return out
}

// Run processes records. The output does not depend on the worker count.
func (r *Runner) Run(ctx context.Context, records []dialog.RawRecord) (*Output, error) {
	started := time.Now()
	out := &Output{}

	if r.store != nil {
		id, err := r.store.CreateRun(ctx, &store.Run{Source: r.source, Strategy: r.cfg.Strategy, StartedAt: started.UTC()})
		if err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		out.RunID = id
	}

	groups, order, malformed := assemble.Group(records)
	if len(malformed) > 0 {
		r.log.Warn(module, "dropped records without conversation id", map[string]any{"count": len(malformed)})
	}

	slots := make([]slot, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, id := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = r.process(gctx, id, groups[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Stats = r.reduce(slots, malformed)
	for _, s := range slots {
		if s.item.Conversation != nil {
			out.Items = append(out.Items, s.item)
		}
	}
	out.Report = intent.Summarize(r.cfg.Strategy, out.Results())
	out.Stats.Duration = time.Since(started)

	if r.store != nil {
		if err := r.persist(ctx, out); err != nil {
			return nil, err
		}
	}

	r.log.Info(module, "run finished", map[string]any{
		"run_id":        out.RunID,
		"conversations": out.Stats.Conversations,
		"accepted":      out.Stats.Accepted,
		"rejected":      out.Stats.Rejected,
		"duration_ms":   out.Stats.Duration.Milliseconds(),
	})
	return out, nil
}

// slot is the map output for one conversation id. Each worker writes only
// its own slot.
type slot struct {
	item       Item
	diag       assemble.Diagnostics
	analyzed   bool
	analyzeErr bool
}

func (r *Runner) process(ctx context.Context, id string, records []dialog.RawRecord) slot {
	conv, diag := r.assembler.Assemble(id, records)
	s := slot{diag: diag}
	if conv == nil {
		return s
	}

	r.extractor.Annotate(conv)
	verdict := r.filter.Apply(conv)
	s.item.Conversation = conv
	if !verdict.Accepted {
		r.log.Debug(module, "conversation rejected", map[string]any{"conversation_id": id, "reason": verdict.Reason, "score": verdict.Score})
		return s
	}

	res := r.classifier.Classify(conv)
	s.item.Intent = &res

	if r.analyzer != nil {
		actx, cancel := context.WithTimeout(ctx, r.cfg.AnalyzeTimeout)
		a, err := r.analyzer.Analyze(actx, Transcript(conv))
		cancel()
		s.analyzed = true
		if err != nil {
			s.analyzeErr = true
			s.item.AnalyzeError = err.Error()
			r.log.Warn(module, "analysis failed", map[string]any{"conversation_id": id, "error": err.Error()})
		} else {
			s.item.Analysis = &a
		}
	}
	return s
}

func (r *Runner) persist(ctx context.Context, out *Output) error {
	if err := r.store.SaveConversations(ctx, out.RunID, out.Conversations()); err != nil {
		return fmt.Errorf("saving conversations: %w", err)
	}
	if err := r.store.SaveIntentResults(ctx, out.RunID, out.Results()); err != nil {
		return fmt.Errorf("saving intent results: %w", err)
	}
	stats, err := json.Marshal(out.Stats)
	if err != nil {
		return fmt.Errorf("encoding run stats: %w", err)
	}
	if err := r.store.FinishRun(ctx, out.RunID, string(stats)); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// Transcript renders the real messages of conv as role-prefixed lines.
func Transcript(conv *dialog.Conversation) string {
	var b strings.Builder
	for _, m := range conv.RealMessages() {
		label := "客服"
		if m.Role == dialog.RoleUser {
			label = "用户"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.CleanContent)
		b.WriteByte('\n')
	}
	return b.String()
}
