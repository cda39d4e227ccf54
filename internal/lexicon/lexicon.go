// Package lexicon holds the word lists and rule tables that drive role
// inference, entity extraction, quality scoring, intent classification and
// FAQ categorisation.
//
// A Bundle is plain data. Components copy what they need when they are
// constructed, so a Bundle can be loaded once and shared across workers.
// Default returns a fresh Bundle on every call; Load overlays a YAML file on
// top of the defaults.
package lexicon

import (
	"github.com/hurttlocker/convoscope/internal/dialog"
)

const (
	// OtherScenario is the scenario reported when nothing scores.
	OtherScenario = "other"
	// FallbackIntent is the intent reported when no intent keyword scores.
	FallbackIntent = "other-query"
	// UnknownIntent is reported for conversations without user messages.
	UnknownIntent = "unknown"
	// DefaultCategory is the FAQ category used when no category keyword hits.
	DefaultCategory = "其他类/其他问题"
)

// Bundle is the complete set of lexicons used by the pipeline.
type Bundle struct {
	Roles          RoleLexicon     `yaml:"roles"`
	Markers        Markers         `yaml:"markers"`
	EntityPatterns []EntityPattern `yaml:"entity_patterns" validate:"dive"`
	Domain         Domain          `yaml:"domain"`
	Scenarios      []Scenario      `yaml:"scenarios" validate:"required,dive"`
	Bonuses        []Bonus         `yaml:"bonuses" validate:"dive"`
	Overrides      []Override      `yaml:"overrides" validate:"dive"`
	Context        ContextLexicon  `yaml:"context"`
	Categories     []Category      `yaml:"categories" validate:"dive"`
	TemplateRules  []TemplateRule  `yaml:"template_rules" validate:"dive"`
	QuestionWords  []string        `yaml:"question_words"`
	Vocabulary     []string        `yaml:"vocabulary"`
	Stopwords      []string        `yaml:"stopwords"`
}

// RoleLexicon lists the cue words used to guess a sender role.
type RoleLexicon struct {
	Agent []string `yaml:"agent"`
	User  []string `yaml:"user"`
}

// Markers drive greeting and closing synthesis in the assembler.
type Markers struct {
	Greeting          []string `yaml:"greeting"`
	Closing           []string `yaml:"closing"`
	SyntheticGreeting string   `yaml:"synthetic_greeting"`
	SyntheticClosing  string   `yaml:"synthetic_closing"`
}

// EntityPattern is one row of the pluggable extraction table.
type EntityPattern struct {
	Type dialog.EntityType `yaml:"type" validate:"required"`
	Name string            `yaml:"name" validate:"required"`
	Expr string            `yaml:"expr" validate:"required"`
	// Group selects the capture group holding the value; 0 is the whole match.
	Group int `yaml:"group" validate:"min=0"`
	// Boundary is "digit", "alnum" or empty. A match whose neighbouring
	// characters belong to the class is rejected.
	Boundary string `yaml:"boundary" validate:"omitempty,oneof=digit alnum"`
	// Mixed requires the value to contain both letters and digits.
	Mixed bool `yaml:"mixed"`
}

// WeightedKeyword is a domain keyword and its relevance weight.
type WeightedKeyword struct {
	Word   string  `yaml:"word" validate:"required"`
	Weight float64 `yaml:"weight" validate:"gt=0"`
}

// Domain lists business vocabulary used by the quality filter.
type Domain struct {
	Keywords          []WeightedKeyword `yaml:"keywords" validate:"dive"`
	StructureGreeting []string          `yaml:"structure_greeting"`
	StructureClosing  []string          `yaml:"structure_closing"`
}

// Intent is one classifiable intent with its keywords.
type Intent struct {
	ID       string   `yaml:"id" validate:"required"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	// Cues are extra substrings used only by the substring-matching strategies.
	Cues []string `yaml:"cues"`
}

// Scenario groups intents under a business scenario.
type Scenario struct {
	ID       string   `yaml:"id" validate:"required"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Intents  []Intent `yaml:"intents" validate:"dive"`
}

// Bonus adds points to a scenario or intent when an entity is present
// and/or a keyword occurs in user text.
type Bonus struct {
	Scenario string            `yaml:"scenario"`
	Intent   string            `yaml:"intent"`
	Entity   dialog.EntityType `yaml:"entity"`
	Keywords []string          `yaml:"keywords"`
	Points   int               `yaml:"points" validate:"gt=0"`
}

// Override forces an intent when an entity is present and, if Keywords is
// set, one of them occurs in user text. Overrides are tried in order.
type Override struct {
	Name       string            `yaml:"name" validate:"required"`
	Entity     dialog.EntityType `yaml:"entity" validate:"required"`
	Keywords   []string          `yaml:"keywords"`
	Intent     string            `yaml:"intent" validate:"required"`
	Confidence float64           `yaml:"confidence" validate:"min=0,max=1"`
}

// ContextPattern maps an agent question to the intent it implies.
// An empty Intent marks an open question that implies nothing.
type ContextPattern struct {
	Phrase     string  `yaml:"phrase" validate:"required"`
	Intent     string  `yaml:"intent"`
	Confidence float64 `yaml:"confidence" validate:"min=0,max=1"`
}

// ContextLexicon drives the context-aware classifier.
type ContextLexicon struct {
	Patterns    []ContextPattern `yaml:"patterns" validate:"dive"`
	Transitions []string         `yaml:"transitions"`
}

// Category is an FAQ category and its cue words.
type Category struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords"`
}

// TemplateRule categorises a reply template. It matches when every Require
// phrase and at least one Any phrase occur in the content.
type TemplateRule struct {
	Category string   `yaml:"category" validate:"required"`
	Scenario string   `yaml:"scenario" validate:"required"`
	Require  []string `yaml:"require"`
	Any      []string `yaml:"any"`
}

// ScenarioOf returns the scenario owning intentID, or OtherScenario.
func (b Bundle) ScenarioOf(intentID string) string {
	for _, s := range b.Scenarios {
		for _, in := range s.Intents {
			if in.ID == intentID {
				return s.ID
			}
		}
	}
	return OtherScenario
}

// Intents returns every intent in lexicon order.
func (b Bundle) Intents() []Intent {
	var out []Intent
	for _, s := range b.Scenarios {
		out = append(out, s.Intents...)
	}
	return out
}

// ClassifierWords returns the dictionary used to segment user text for
// intent classification.
func (b Bundle) ClassifierWords() []string {
	var words []string
	for _, s := range b.Scenarios {
		words = append(words, s.Keywords...)
		for _, in := range s.Intents {
			words = append(words, in.Keywords...)
		}
	}
	for _, k := range b.Domain.Keywords {
		words = append(words, k.Word)
	}
	return append(words, b.Vocabulary...)
}

// MatcherWords returns the base dictionary for query segmentation in the
// knowledge matcher. FAQ keywords are added by the knowledge base itself.
func (b Bundle) MatcherWords() []string {
	words := make([]string, 0, len(b.Vocabulary)+len(b.QuestionWords))
	words = append(words, b.Vocabulary...)
	return append(words, b.QuestionWords...)
}
