package intent

import (
	"cmp"
	"slices"

	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// Confidence bucket names.
const (
	BucketHigh   = "high"
	BucketMedium = "medium"
	BucketLow    = "low"
)

// Bucket places a confidence into high (>0.8), medium (0.6-0.8) or low.
func Bucket(confidence float64) string {
	switch {
	case confidence > 0.8:
		return BucketHigh
	case confidence >= 0.6:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Count is one row of a distribution.
type Count struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// Report summarises one strategy's results.
type Report struct {
	Strategy        string         `json:"strategy"`
	Total           int            `json:"total"`
	Scenarios       []Count        `json:"scenarios"`
	Intents         []Count        `json:"intents"`
	Buckets         map[string]int `json:"confidence_buckets"`
	MeanConfidence  float64        `json:"mean_confidence"`
	OtherQueryRatio float64        `json:"other_query_ratio"`
	MultiTopic      int            `json:"multi_topic,omitempty"`
	RuleHits        map[string]int `json:"rule_hits,omitempty"`
}

// Summarize builds the report for results produced by strategy.
func Summarize(strategy string, results []Result) Report {
	r := Report{
		Strategy: strategy,
		Total:    len(results),
		Buckets:  map[string]int{BucketHigh: 0, BucketMedium: 0, BucketLow: 0},
	}
	scenarios := map[string]int{}
	intents := map[string]int{}
	rules := map[string]int{}
	sum, other := 0.0, 0
	for _, res := range results {
		scenarios[res.Scenario]++
		intents[res.Intent]++
		r.Buckets[Bucket(res.Confidence)]++
		sum += res.Confidence
		if res.Intent == lexicon.FallbackIntent {
			other++
		}
		if res.Evidence.Rule != "" {
			rules[res.Evidence.Rule]++
		}
		if distinctIntents(res.Topics) > 1 {
			r.MultiTopic++
		}
	}
	r.Scenarios = distribution(scenarios, len(results))
	r.Intents = distribution(intents, len(results))
	if len(rules) > 0 {
		r.RuleHits = rules
	}
	if len(results) > 0 {
		r.MeanConfidence = sum / float64(len(results))
		r.OtherQueryRatio = float64(other) / float64(len(results))
	}
	return r
}

func distinctIntents(topics []Topic) int {
	seen := map[string]bool{}
	for _, t := range topics {
		seen[t.Intent] = true
	}
	return len(seen)
}

// distribution sorts by count descending, then name.
func distribution(counts map[string]int, total int) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		c := Count{Name: name, Count: n}
		if total > 0 {
			c.Share = float64(n) / float64(total)
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Count) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Comparison lines up several strategy reports.
type Comparison struct {
	Strategies []string `json:"strategies"`
	Rows       []Row    `json:"rows"`
}

// Row is one metric across strategies, in Comparison.Strategies order.
type Row struct {
	Metric string    `json:"metric"`
	Values []float64 `json:"values"`
}

// Compare builds a side-by-side view of reports.
func Compare(reports ...Report) Comparison {
	c := Comparison{}
	for _, r := range reports {
		c.Strategies = append(c.Strategies, r.Strategy)
	}
	metric := func(name string, fn func(Report) float64) {
		row := Row{Metric: name, Values: make([]float64, len(reports))}
		for i, r := range reports {
			row.Values[i] = fn(r)
		}
		c.Rows = append(c.Rows, row)
	}
	share := func(r Report, n int) float64 {
		if r.Total == 0 {
			return 0
		}
		return float64(n) / float64(r.Total)
	}
	metric("total", func(r Report) float64 { return float64(r.Total) })
	metric("mean_confidence", func(r Report) float64 { return r.MeanConfidence })
	metric("high_confidence_ratio", func(r Report) float64 { return share(r, r.Buckets[BucketHigh]) })
	metric("medium_confidence_ratio", func(r Report) float64 { return share(r, r.Buckets[BucketMedium]) })
	metric("low_confidence_ratio", func(r Report) float64 { return share(r, r.Buckets[BucketLow]) })
	metric("other_query_ratio", func(r Report) float64 { return r.OtherQueryRatio })
	metric("distinct_intents", func(r Report) float64 { return float64(len(r.Intents)) })
	return c
}
