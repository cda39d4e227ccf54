// Package intent classifies the business intent of a conversation.
//
// Three strategies share one interface:
//
//	keyword     flat substring scoring over all intents
//	cascade     scenario first, then intent within the scenario, then
//	            entity-driven refinement (the default)
//	contextual  per-message detection using the preceding agent question,
//	            topic transitions and message position
//
// All strategies read lexicons injected at construction and never return
// an error for a conversation: the worst case is intent "unknown" with
// confidence 0.
package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/segment"
)

// Strategy names.
const (
	StrategyKeyword    = "keyword"
	StrategyCascade    = "cascade"
	StrategyContextual = "contextual"
)

// Strategies lists every strategy in comparison order.
var Strategies = []string{StrategyKeyword, StrategyCascade, StrategyContextual}

// ErrUnknownStrategy is returned by New for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("unknown intent strategy")

// Detection sources, ordered by precedence on confidence ties.
const (
	SourceOverride = "override"
	SourceContext  = "context"
	SourceKeyword  = "keyword"
)

// Classifier assigns a scenario and intent to a conversation.
type Classifier interface {
	Name() string
	Classify(conv *dialog.Conversation) Result
}

// Evidence explains a classification.
type Evidence struct {
	Keywords       []string            `json:"keywords,omitempty"`
	Entities       []dialog.EntityType `json:"entities,omitempty"`
	Rule           string              `json:"rule,omitempty"`
	ScenarioScores map[string]int      `json:"scenario_scores,omitempty"`
	IntentScores   map[string]int      `json:"intent_scores,omitempty"`
}

// Topic is one detection made by the contextual strategy.
type Topic struct {
	Intent     string   `json:"intent"`
	Scenario   string   `json:"scenario"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
	Rule       string   `json:"rule,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	MessageSeq int      `json:"message_seq"`
}

// Result is the classification of one conversation.
type Result struct {
	ConversationID string   `json:"conversation_id"`
	Strategy       string   `json:"strategy"`
	Scenario       string   `json:"scenario"`
	Intent         string   `json:"intent"`
	Confidence     float64  `json:"confidence"`
	Evidence       Evidence `json:"evidence"`
	Topics         []Topic  `json:"topics,omitempty"`
	UserMessages   int      `json:"user_messages"`
	Messages       int      `json:"messages"`
}

type options struct {
	scenarioTopK int
	intentTopK   int
	floor        float64
	ceiling      float64
	segmenter    segment.Segmenter
}

// Option configures a classifier.
type Option func(*options)

// WithTopK sets how many ranked keywords the cascade considers in the
// scenario and intent stages. Defaults: 10 and 15.
func WithTopK(scenario, intent int) Option {
	return func(o *options) {
		if scenario > 0 {
			o.scenarioTopK = scenario
		}
		if intent > 0 {
			o.intentTopK = intent
		}
	}
}

// WithConfidenceRange sets the floor and ceiling of ratio-based confidence.
// Defaults: 0.3 and 0.9.
func WithConfidenceRange(floor, ceiling float64) Option {
	return func(o *options) {
		if floor >= 0 && ceiling <= 1 && floor <= ceiling {
			o.floor, o.ceiling = floor, ceiling
		}
	}
}

// WithSegmenter replaces the default dictionary segmenter.
func WithSegmenter(seg segment.Segmenter) Option {
	return func(o *options) {
		if seg != nil {
			o.segmenter = seg
		}
	}
}

// New returns the classifier for strategy. An empty strategy selects the
// cascade.
func New(strategy string, lex lexicon.Bundle, opts ...Option) (Classifier, error) {
	o := options{scenarioTopK: 10, intentTopK: 15, floor: 0.3, ceiling: 0.9}
	for _, opt := range opts {
		opt(&o)
	}
	if o.segmenter == nil {
		o.segmenter = segment.NewDictionary(lex.ClassifierWords())
	}
	b := &base{
		lex:    lex,
		opts:   o,
		ranker: segment.NewRanker(o.segmenter, lex.Stopwords),
	}

	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case StrategyCascade, "":
		return &Cascade{base: b}, nil
	case StrategyKeyword:
		return &Keyword{base: b}, nil
	case StrategyContextual:
		return &Contextual{base: b}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

// base holds what every strategy shares.
type base struct {
	lex    lexicon.Bundle
	opts   options
	ranker *segment.Ranker
}

// start fills the identity fields of a result and reports whether the
// conversation has user messages to classify.
func (b *base) start(name string, conv *dialog.Conversation) (Result, []*dialog.Message) {
	users := conv.UserMessages()
	res := Result{
		ConversationID: conv.ID,
		Strategy:       name,
		Scenario:       lexicon.OtherScenario,
		Intent:         lexicon.UnknownIntent,
		UserMessages:   len(users),
		Messages:       len(conv.Messages),
	}
	res.Evidence.Entities = entityTypes(conv)
	return res, users
}

// ratioConfidence maps the winner's share of the total score into the
// configured confidence range.
func (b *base) ratioConfidence(best, total int) float64 {
	if total <= 0 {
		return b.opts.floor
	}
	c := b.opts.floor + float64(best)/float64(total)*0.5
	return clamp(c, b.opts.floor, b.opts.ceiling)
}

func (b *base) bonusApplies(bonus lexicon.Bonus, conv *dialog.Conversation, text string) bool {
	if bonus.Entity != "" && !conv.HasEntity(bonus.Entity) {
		return false
	}
	if len(bonus.Keywords) > 0 && !containsAny(text, bonus.Keywords) {
		return false
	}
	return bonus.Entity != "" || len(bonus.Keywords) > 0
}

// override returns the first override rule that fires.
func (b *base) override(conv *dialog.Conversation, text string) (lexicon.Override, bool) {
	for _, o := range b.lex.Overrides {
		if !conv.HasEntity(o.Entity) {
			continue
		}
		if len(o.Keywords) > 0 && !containsAny(text, o.Keywords) {
			continue
		}
		return o, true
	}
	return lexicon.Override{}, false
}

func joinUserText(users []*dialog.Message) string {
	parts := make([]string, 0, len(users))
	for _, m := range users {
		parts = append(parts, m.CleanContent)
	}
	return strings.Join(parts, " ")
}

func entityTypes(conv *dialog.Conversation) []dialog.EntityType {
	var out []dialog.EntityType
	for _, t := range dialog.EntityTypes {
		if conv.HasEntity(t) {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// hits returns the ranked keywords that appear in vocabulary, in rank order.
func hits(ranked []string, vocabulary []string) []string {
	set := make(map[string]struct{}, len(vocabulary))
	for _, w := range vocabulary {
		set[strings.ToLower(w)] = struct{}{}
	}
	var out []string
	for _, k := range ranked {
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
