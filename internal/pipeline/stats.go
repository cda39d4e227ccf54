package pipeline

import (
	"encoding/json"
	"time"

	"github.com/hurttlocker/convoscope/internal/assemble"
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/intent"
)

// Stats summarizes a run.
type Stats struct {
	Conversations   int                  `json:"conversations"`
	Accepted        int                  `json:"accepted"`
	Rejected        int                  `json:"rejected"`
	Rejections      map[string]int       `json:"rejections,omitempty"`
	Scenarios       map[string]int       `json:"scenarios,omitempty"`
	Intents         map[string]int       `json:"intents,omitempty"`
	Buckets         map[string]int       `json:"confidence_buckets,omitempty"`
	Entities        map[string]int       `json:"entities,omitempty"`
	Analyzed        int                  `json:"analyzed,omitempty"`
	AnalyzeFailures int                  `json:"analyze_failures,omitempty"`
	Diagnostics     assemble.Diagnostics `json:"diagnostics"`
	Duration        time.Duration        `json:"-"`
}

// MarshalJSON adds the duration in milliseconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"duration_ms"`
	}{plain(s), s.Duration.Milliseconds()})
}

// AcceptanceRate returns accepted / conversations, or 0 for an empty run.
func (s Stats) AcceptanceRate() float64 {
	if s.Conversations == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Conversations)
}

func (r *Runner) reduce(slots []slot, malformed []dialog.RawRecord) Stats {
	st := Stats{
		Rejections: map[string]int{},
		Scenarios:  map[string]int{},
		Intents:    map[string]int{},
		Buckets:    map[string]int{},
		Entities:   map[string]int{},
	}
	st.Diagnostics = assemble.MalformedDiagnostics(malformed)

	for _, s := range slots {
		st.Diagnostics.Merge(s.diag)
		conv := s.item.Conversation
		if conv == nil {
			continue
		}
		st.Conversations++
		for t, values := range conv.StructuredInfo {
			st.Entities[string(t)] += len(values)
		}
		if !conv.Accepted() {
			st.Rejected++
			st.Rejections[conv.Quality.Reason]++
			continue
		}
		st.Accepted++
		if res := s.item.Intent; res != nil {
			st.Scenarios[res.Scenario]++
			st.Intents[res.Intent]++
			st.Buckets[intent.Bucket(res.Confidence)]++
		}
		if s.analyzed {
			st.Analyzed++
		}
		if s.analyzeErr {
			st.AnalyzeFailures++
		}
	}

	if st.Diagnostics.RatioRoles > 0 {
		r.log.Debug(module, "roles decided by ratio fallback", map[string]any{"messages": st.Diagnostics.RatioRoles})
	}
	for _, issue := range st.Diagnostics.Issues {
		r.log.Debug(module, "record issue", map[string]any{"issue": issue.String()})
	}
	return st
}
