package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Match statuses.
const (
	StatusOK              = "ok"
	StatusNoMatch         = "no_match"
	StatusEmptyQuery      = "empty_query"
	StatusNoKnowledgeBase = "no_knowledge_base"
)

// Signal weights of the combined score.
const (
	weightText       = 0.3
	weightJaccard    = 0.3
	weightPartial    = 0.2
	weightInQuestion = 0.2

	partialCredit     = 0.5
	inQuestionCredit  = 0.6
	exactKeywordBoost = 0.1
	exactQueryFloor   = 0.95

	relatedTemplateLimit = 2
)

// MatchOptions tunes the matcher.
type MatchOptions struct {
	// Threshold is the minimum combined score. Default: 0.3; NoThreshold
	// keeps every FAQ that scores above zero.
	Threshold float64
	// TopN caps the number of matches. Default: 3.
	TopN int
	// CacheTTL is how long results stay cached. Default: 5m; negative
	// disables caching.
	CacheTTL time.Duration
}

// NoThreshold disables the score threshold. Zero cannot mean that, since
// zero options fall back to defaults.
const NoThreshold = -1.0

// DefaultMatchOptions returns the recommended settings.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{Threshold: 0.3, TopN: 3, CacheTTL: 5 * time.Minute}
}

// Match is one ranked FAQ hit.
type Match struct {
	FAQID           string     `json:"faq_id"`
	Score           float64    `json:"score"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
	Entry           FAQEntry   `json:"faq"`
	Templates       []Template `json:"related_templates,omitempty"`
}

// MatchResult is the outcome of one query.
type MatchResult struct {
	Query      string   `json:"query"`
	Status     string   `json:"status"`
	Keywords   []string `json:"keywords,omitempty"`
	Matches    []Match  `json:"matches"`
	Generation uint64   `json:"generation"`
}

// Matcher ranks FAQ entries of the registry's current snapshot against
// free-text queries. It is safe for concurrent use.
type Matcher struct {
	reg   *Registry
	opts  MatchOptions
	cache *cache.Cache
}

// NewMatcher returns a matcher over reg. Zero options fall back to
// defaults.
func NewMatcher(reg *Registry, opts MatchOptions) *Matcher {
	def := DefaultMatchOptions()
	switch {
	case opts.Threshold == 0:
		opts.Threshold = def.Threshold
	case opts.Threshold < 0:
		opts.Threshold = NoThreshold
	}
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = def.CacheTTL
	}
	m := &Matcher{reg: reg, opts: opts}
	if opts.CacheTTL > 0 {
		m.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return m
}

// Options returns the effective settings.
func (m *Matcher) Options() MatchOptions { return m.opts }

// Match scores query against the current snapshot.
func (m *Matcher) Match(query string) MatchResult {
	snap := m.reg.snapshot()
	key := fmt.Sprintf("%d\x00%s", snap.generation, query)
	if m.cache != nil {
		if x, ok := m.cache.Get(key); ok {
			return copyResult(x.(MatchResult))
		}
	}
	res := m.match(snap, query)
	if m.cache != nil {
		m.cache.Set(key, res, cache.DefaultExpiration)
	}
	return copyResult(res)
}

func copyResult(r MatchResult) MatchResult {
	r.Matches = append([]Match(nil), r.Matches...)
	r.Keywords = append([]string(nil), r.Keywords...)
	return r
}

func (m *Matcher) match(snap *snapshot, query string) MatchResult {
	res := MatchResult{Query: query, Generation: snap.generation, Matches: []Match{}}
	b := snap.base
	if b.Len() == 0 {
		res.Status = StatusNoKnowledgeBase
		return res
	}
	norm := Normalize(query)
	keywords := b.Keywords(norm)
	res.Keywords = keywords
	if len(keywords) == 0 {
		res.Status = StatusEmptyQuery
		return res
	}

	var matches []Match
	for i := range b.faqs {
		score, matched := b.score(i, norm, keywords)
		if score <= 0 || score < m.opts.Threshold {
			continue
		}
		matches = append(matches, Match{
			FAQID:           b.faqs[i].ID,
			Score:           score,
			MatchedKeywords: matched,
			Entry:           b.faqs[i],
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > m.opts.TopN {
		matches = matches[:m.opts.TopN]
	}
	for i := range matches {
		matches[i].Templates = b.relatedTemplates(matches[i].Entry.Category, relatedTemplateLimit)
	}
	if len(matches) == 0 {
		res.Status = StatusNoMatch
		return res
	}
	res.Status = StatusOK
	res.Matches = matches
	return res
}

// score combines the four signals for FAQ i.
func (b *Base) score(i int, norm string, keywords []string) (float64, []string) {
	text := Ratio(norm, b.normStandard[i])
	for _, v := range b.normVariants[i] {
		text = max(text, Ratio(norm, v))
	}

	faqKeywords := b.keywords[i]
	jaccard := Jaccard(keywords, faqKeywords)

	partial, inQuestion, boost := 0.0, 0.0, 0.0
	var matched []string
	for _, q := range keywords {
		for _, k := range faqKeywords {
			if strings.Contains(k, q) || strings.Contains(q, k) {
				partial = partialCredit
				break
			}
		}
		for _, question := range b.lowerQs[i] {
			if strings.Contains(question, q) {
				inQuestion = inQuestionCredit
				break
			}
		}
		if b.keywordSet[i][q] {
			boost = exactKeywordBoost
			matched = append(matched, q)
		}
	}

	score := weightText*text + weightJaccard*jaccard + weightPartial*partial + weightInQuestion*inQuestion + boost
	if norm == b.normStandard[i] {
		score = max(score, exactQueryFloor)
	}
	for _, v := range b.normVariants[i] {
		if norm == v {
			score = max(score, exactQueryFloor)
		}
	}
	return max(0, min(1, score)), matched
}

// relatedTemplates returns up to limit templates whose category contains
// the main category (the part before '/') of category.
func (b *Base) relatedTemplates(category string, limit int) []Template {
	main, _, _ := strings.Cut(category, "/")
	if main == "" {
		return nil
	}
	var out []Template
	for _, t := range b.templates {
		if strings.Contains(t.Category, main) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
