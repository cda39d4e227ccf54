package intent

import (
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// Cascade classifies in three stages: scenario, intent within the
// scenario, then entity-driven refinement.
type Cascade struct {
	*base
}

// Name implements Classifier.
func (c *Cascade) Name() string { return StrategyCascade }

// Classify implements Classifier.
func (c *Cascade) Classify(conv *dialog.Conversation) Result {
	res, users := c.start(StrategyCascade, conv)
	if len(users) == 0 {
		return res
	}
	text := joinUserText(users)

	// Stage 1: scenario from the top keywords plus entity bonuses.
	ranked := c.ranker.Top(text, c.opts.scenarioTopK)
	scenarioScores := map[string]int{}
	scenario, scenarioBest := lexicon.OtherScenario, 0
	var scenarioHits []string
	for _, s := range c.lex.Scenarios {
		h := hits(ranked, s.Keywords)
		score := len(h)
		for _, bonus := range c.lex.Bonuses {
			if bonus.Scenario == s.ID && c.bonusApplies(bonus, conv, text) {
				score += bonus.Points
			}
		}
		if score == 0 {
			continue
		}
		scenarioScores[s.ID] = score
		if score > scenarioBest {
			scenario, scenarioBest, scenarioHits = s.ID, score, h
		}
	}

	// Stage 2: intent among the winning scenario's intents.
	ranked = c.ranker.Top(text, c.opts.intentTopK)
	intentScores := map[string]int{}
	intent, intentBest, total := lexicon.FallbackIntent, 0, 0
	var intentHits []string
	for _, in := range c.scenarioIntents(scenario) {
		h := hits(ranked, in.Keywords)
		score := len(h)
		for _, bonus := range c.lex.Bonuses {
			if bonus.Intent == in.ID && c.bonusApplies(bonus, conv, text) {
				score += bonus.Points
			}
		}
		if score == 0 {
			continue
		}
		intentScores[in.ID] = score
		total += score
		if score > intentBest {
			intent, intentBest, intentHits = in.ID, score, h
		}
	}

	res.Scenario = scenario
	res.Intent = intent
	res.Evidence.ScenarioScores = scenarioScores
	res.Evidence.IntentScores = intentScores
	res.Evidence.Keywords = mergeUnique(scenarioHits, intentHits)

	// Stage 3: refinement by entity rules.
	if o, ok := c.override(conv, text); ok {
		res.Intent = o.Intent
		res.Scenario = c.lex.ScenarioOf(o.Intent)
		res.Confidence = o.Confidence
		res.Evidence.Rule = o.Name
		return res
	}

	if scenario == lexicon.OtherScenario || intent == lexicon.FallbackIntent {
		res.Confidence = c.opts.floor
		return res
	}
	res.Confidence = c.ratioConfidence(intentBest, total)
	return res
}

func (c *Cascade) scenarioIntents(id string) []lexicon.Intent {
	for _, s := range c.lex.Scenarios {
		if s.ID == id {
			return s.Intents
		}
	}
	return nil
}

func mergeUnique(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, w := range l {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}
