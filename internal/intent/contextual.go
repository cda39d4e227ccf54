package intent

import (
	"cmp"
	"slices"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// earlyWindow is the last message index at which a user message may open
// a topic without a transition word.
const earlyWindow = 3

// Contextual reads each user message against the agent question before
// it. Every detection is kept as a Topic; the strongest one decides.
type Contextual struct {
	*base
}

// Name implements Classifier.
func (c *Contextual) Name() string { return StrategyContextual }

// Classify implements Classifier.
func (c *Contextual) Classify(conv *dialog.Conversation) Result {
	res, users := c.start(StrategyContextual, conv)
	if len(users) == 0 {
		return res
	}
	msgs := conv.RealMessages()

	var topics []Topic
	for i, m := range msgs {
		if m.Role != dialog.RoleUser {
			continue
		}
		if agent := previousAgent(msgs, i); agent != nil {
			for _, p := range c.lex.Context.Patterns {
				if !strings.Contains(agent.CleanContent, p.Phrase) {
					continue
				}
				if p.Intent != "" {
					t := c.topic(p.Intent, p.Confidence, SourceContext, m.SequenceNo)
					t.Keywords = []string{p.Phrase}
					topics = append(topics, t)
				}
				break
			}
		}

		scores, matched := c.score(m.CleanContent, nil)
		intent, best, total := pick(scores, c.lex.Intents())
		if total == 0 {
			continue
		}
		ratio := float64(best) / float64(total)
		var confidence float64
		switch {
		case containsAny(m.CleanContent, c.lex.Context.Transitions):
			confidence = min(0.4+ratio*0.4, c.opts.ceiling)
		case i <= earlyWindow:
			confidence = min(0.5+ratio*0.4, c.opts.ceiling)
		default:
			continue
		}
		t := c.topic(intent, confidence, SourceKeyword, m.SequenceNo)
		t.Keywords = matched[intent]
		topics = append(topics, t)
	}

	// Entity rules: per entity type, the first override that fires.
	text := joinUserText(users)
	fired := map[dialog.EntityType]bool{}
	for _, o := range c.lex.Overrides {
		if fired[o.Entity] || !conv.HasEntity(o.Entity) {
			continue
		}
		if len(o.Keywords) > 0 && !containsAny(text, o.Keywords) {
			continue
		}
		fired[o.Entity] = true
		t := c.topic(o.Intent, o.Confidence, SourceOverride, 0)
		t.Rule = o.Name
		t.Keywords = matchedWords(text, o.Keywords)
		topics = append(topics, t)
	}

	if len(topics) == 0 {
		res.Intent = lexicon.FallbackIntent
		res.Confidence = c.opts.floor
		return res
	}

	slices.SortStableFunc(topics, func(a, b Topic) int {
		if a.Confidence != b.Confidence {
			return cmp.Compare(b.Confidence, a.Confidence)
		}
		return cmp.Compare(sourceRank(a.Source), sourceRank(b.Source))
	})
	top := topics[0]
	res.Intent = top.Intent
	res.Scenario = top.Scenario
	res.Confidence = top.Confidence
	res.Topics = topics
	res.Evidence.Rule = top.Rule
	res.Evidence.Keywords = top.Keywords
	return res
}

// matchedWords returns the words that occur in text, in list order.
func matchedWords(text string, words []string) []string {
	var out []string
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			out = append(out, w)
		}
	}
	return out
}

func (c *Contextual) topic(intent string, confidence float64, source string, seq int) Topic {
	return Topic{
		Intent:     intent,
		Scenario:   c.lex.ScenarioOf(intent),
		Confidence: confidence,
		Source:     source,
		MessageSeq: seq,
	}
}

func previousAgent(msgs []*dialog.Message, i int) *dialog.Message {
	for j := i - 1; j >= 0; j-- {
		if msgs[j].Role == dialog.RoleAgent {
			return msgs[j]
		}
	}
	return nil
}

func sourceRank(source string) int {
	if source == SourceOverride {
		return 0
	}
	return 1
}
