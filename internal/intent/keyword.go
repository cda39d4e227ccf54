package intent

import (
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// Keyword scores every intent by substring hits over the combined user
// text. It is the baseline the other strategies are compared against.
type Keyword struct {
	*base
}

// Name implements Classifier.
func (k *Keyword) Name() string { return StrategyKeyword }

// Classify implements Classifier.
func (k *Keyword) Classify(conv *dialog.Conversation) Result {
	res, users := k.start(StrategyKeyword, conv)
	if len(users) == 0 {
		return res
	}
	text := joinUserText(users)

	scores, matched := k.score(text, conv)
	intent, best, total := pick(scores, k.lex.Intents())

	res.Evidence.IntentScores = scores
	if total == 0 {
		res.Intent = lexicon.FallbackIntent
		res.Confidence = k.opts.floor
		return res
	}
	res.Intent = intent
	res.Scenario = k.lex.ScenarioOf(intent)
	res.Confidence = k.ratioConfidence(best, total)
	res.Evidence.Keywords = matched[intent]
	return res
}

// score counts keyword and cue presence per intent in text and adds the
// entity-only bonuses. Intents scoring zero are omitted.
func (b *base) score(text string, conv *dialog.Conversation) (map[string]int, map[string][]string) {
	scores := map[string]int{}
	matched := map[string][]string{}
	for _, in := range b.lex.Intents() {
		if in.ID == lexicon.FallbackIntent {
			continue
		}
		n := 0
		for _, w := range append(append([]string(nil), in.Keywords...), in.Cues...) {
			if w != "" && strings.Contains(text, w) {
				n++
				matched[in.ID] = append(matched[in.ID], w)
			}
		}
		if conv != nil {
			for _, bonus := range b.lex.Bonuses {
				if bonus.Intent == in.ID && len(bonus.Keywords) == 0 && b.bonusApplies(bonus, conv, text) {
					n += bonus.Points
				}
			}
		}
		if n > 0 {
			scores[in.ID] = n
		}
	}
	return scores, matched
}

// pick returns the highest-scoring intent, earliest in lexicon order on
// ties, with its score and the score total.
func pick(scores map[string]int, order []lexicon.Intent) (string, int, int) {
	best, bestScore, total := "", 0, 0
	for _, in := range order {
		s := scores[in.ID]
		total += s
		if s > bestScore {
			best, bestScore = in.ID, s
		}
	}
	return best, bestScore, total
}
