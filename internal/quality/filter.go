// Package quality decides whether an assembled conversation is worth
// classifying.
//
// Checks run cheapest first and stop at the first failure. Only
// conversations that pass every cheap check get a composite score.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// Rejection reasons.
const (
	ReasonTooFewUserMessages   = "too_few_user_messages"
	ReasonNoSubstantialContent = "no_substantial_content"
	ReasonNoBusinessContext    = "no_business_context"
	ReasonLowQualityScore      = "low_quality_score"
)

// Sub-score names.
const (
	ScoreLength        = "length"
	ScoreParticipation = "participation"
	ScoreRichness      = "richness"
	ScoreRelevance     = "relevance"
	ScoreStructure     = "structure"
)

// Weights sets the contribution of each sub-score to the composite.
type Weights struct {
	Length        float64 `yaml:"length" validate:"min=0"`
	Participation float64 `yaml:"participation" validate:"min=0"`
	Richness      float64 `yaml:"richness" validate:"min=0"`
	Relevance     float64 `yaml:"relevance" validate:"min=0"`
	Structure     float64 `yaml:"structure" validate:"min=0"`
}

func (w Weights) sum() float64 {
	return w.Length + w.Participation + w.Richness + w.Relevance + w.Structure
}

// Config controls the quality filter.
type Config struct {
	// MinUserMessages is the minimum number of real user messages.
	// Default: 2.
	MinUserMessages int

	// MinContentLength is the rune length a user message must exceed to
	// count as substantial. Default: 5.
	MinContentLength int

	// Threshold is the minimum composite score. Raising it never admits a
	// conversation that a lower threshold rejected. Default: 0.6.
	Threshold float64

	// Weights for the composite score.
	Weights Weights

	// IdealMinMessages and IdealMaxMessages bound the message count that
	// earns full length credit. Defaults: 5 and 20.
	IdealMinMessages int
	IdealMaxMessages int

	// RelevanceSaturation is the keyword weight total that earns full
	// relevance credit. Default: 5.
	RelevanceSaturation float64
}

// DefaultConfig returns the recommended filter settings.
func DefaultConfig() Config {
	return Config{
		MinUserMessages:  2,
		MinContentLength: 5,
		Threshold:        0.6,
		Weights: Weights{
			Length:        1.5,
			Participation: 1.5,
			Richness:      1.5,
			Relevance:     2.0,
			Structure:     1.5,
		},
		IdealMinMessages:    5,
		IdealMaxMessages:    20,
		RelevanceSaturation: 5,
	}
}

// Filter scores and gates conversations. It holds only immutable settings
// and is safe for concurrent use.
type Filter struct {
	config   Config
	keywords []lexicon.WeightedKeyword
	greeting []string
	closing  []string
}

// New creates a Filter. Zero-valued count, weight and saturation fields
// fall back to defaults; Threshold is used as given.
func New(cfg Config, domain lexicon.Domain) *Filter {
	def := DefaultConfig()
	if cfg.MinUserMessages <= 0 {
		cfg.MinUserMessages = def.MinUserMessages
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = def.MinContentLength
	}
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = def.Weights
	}
	if cfg.IdealMinMessages <= 0 {
		cfg.IdealMinMessages = def.IdealMinMessages
	}
	if cfg.IdealMaxMessages < cfg.IdealMinMessages {
		cfg.IdealMaxMessages = max(def.IdealMaxMessages, cfg.IdealMinMessages)
	}
	if cfg.RelevanceSaturation <= 0 {
		cfg.RelevanceSaturation = def.RelevanceSaturation
	}
	return &Filter{
		config:   cfg,
		keywords: append([]lexicon.WeightedKeyword(nil), domain.Keywords...),
		greeting: append([]string(nil), domain.StructureGreeting...),
		closing:  append([]string(nil), domain.StructureClosing...),
	}
}

// Config returns the effective settings.
func (f *Filter) Config() Config { return f.config }

// Evaluate returns the verdict for conv without modifying it. Synthetic
// messages are ignored by every check.
func (f *Filter) Evaluate(conv *dialog.Conversation) dialog.QualityVerdict {
	msgs := conv.RealMessages()
	users := conv.UserMessages()

	if len(users) < f.config.MinUserMessages {
		return reject(ReasonTooFewUserMessages, 0, nil)
	}

	substantial := false
	for _, m := range users {
		if utf8.RuneCountInString(m.CleanContent) > f.config.MinContentLength && dialog.IsSubstantive(m.CleanContent) {
			substantial = true
			break
		}
	}
	if !substantial {
		return reject(ReasonNoSubstantialContent, 0, nil)
	}

	if !f.hasBusinessContext(conv, msgs) {
		return reject(ReasonNoBusinessContext, 0, nil)
	}

	subs := f.SubScores(msgs, len(users))
	score := f.composite(subs)
	if score < f.config.Threshold {
		return reject(ReasonLowQualityScore, score, subs)
	}
	return dialog.QualityVerdict{Accepted: true, Score: score, SubScores: subs}
}

// Apply evaluates conv and records the verdict and score on it.
func (f *Filter) Apply(conv *dialog.Conversation) dialog.QualityVerdict {
	v := f.Evaluate(conv)
	conv.Quality = &v
	conv.QualityScore = v.Score
	return v
}

func reject(reason string, score float64, subs map[string]float64) dialog.QualityVerdict {
	return dialog.QualityVerdict{Accepted: false, Score: score, Reason: reason, SubScores: subs}
}

func (f *Filter) hasBusinessContext(conv *dialog.Conversation, msgs []*dialog.Message) bool {
	for _, m := range msgs {
		if f.anyKeyword(m.CleanContent) {
			return true
		}
	}
	md := conv.Metadata
	return f.anyKeyword(md.BusinessGroup) || f.anyKeyword(md.FeedbackLabel)
}

func (f *Filter) anyKeyword(text string) bool {
	if text == "" {
		return false
	}
	for _, k := range f.keywords {
		if strings.Contains(text, k.Word) {
			return true
		}
	}
	return false
}

// SubScores computes the five composite inputs over real messages.
func (f *Filter) SubScores(msgs []*dialog.Message, userCount int) map[string]float64 {
	n := len(msgs)
	subs := map[string]float64{}

	switch {
	case n >= f.config.IdealMinMessages && n <= f.config.IdealMaxMessages:
		subs[ScoreLength] = 1
	case n < f.config.IdealMinMessages:
		subs[ScoreLength] = 0.3
	default:
		subs[ScoreLength] = 0.7
	}

	if n > 0 {
		subs[ScoreParticipation] = min(1, 2*float64(userCount)/float64(n))
	}

	total, weight := 0, 0.0
	greeting, closing := false, false
	for _, m := range msgs {
		total += utf8.RuneCountInString(m.CleanContent)
		for _, k := range f.keywords {
			if strings.Contains(m.CleanContent, k.Word) {
				weight += k.Weight
			}
		}
		if m.Role == dialog.RoleAgent {
			greeting = greeting || containsAny(m.CleanContent, f.greeting)
			closing = closing || containsAny(m.CleanContent, f.closing)
		}
	}

	avg := 0.0
	if n > 0 {
		avg = float64(total) / float64(n)
	}
	switch {
	case avg >= 15:
		subs[ScoreRichness] = 1
	case avg >= 8:
		subs[ScoreRichness] = 0.5
	default:
		subs[ScoreRichness] = 0.2
	}

	subs[ScoreRelevance] = min(1, weight/f.config.RelevanceSaturation)

	switch {
	case greeting && closing:
		subs[ScoreStructure] = 1
	case greeting || closing:
		subs[ScoreStructure] = 0.5
	default:
		subs[ScoreStructure] = 0
	}
	return subs
}

func (f *Filter) composite(subs map[string]float64) float64 {
	w := f.config.Weights
	sum := w.Length*subs[ScoreLength] +
		w.Participation*subs[ScoreParticipation] +
		w.Richness*subs[ScoreRichness] +
		w.Relevance*subs[ScoreRelevance] +
		w.Structure*subs[ScoreStructure]
	score := sum / w.sum()
	return max(0, min(1, score))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}
