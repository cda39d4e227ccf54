package knowledge

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/segment"
)

const (
	defaultTemplateCategory = "通用类/其他"
	defaultTemplateScenario = "一般回复"
)

// BuildOptions tunes knowledge base mining.
type BuildOptions struct {
	// MinQuality is the lowest conversation quality score used. Default: 0.7.
	MinQuality float64
	// MaxVariants caps variant questions per FAQ. Default: 5.
	MaxVariants int
	// KeywordCount is the number of keywords kept per FAQ. Default: 10.
	KeywordCount int
	// RelatedCount is the number of related FAQs linked. Default: 3.
	RelatedCount int
	// MinTemplateFrequency is the number of conversations an agent reply
	// must appear in to become a template. Default: 2.
	MinTemplateFrequency int
	// MinTemplateLength is the rune length a reply must exceed. Default: 10.
	MinTemplateLength int
	// MaxTemplates caps the template list. Default: 50.
	MaxTemplates int
	// Now stamps update times. Default: time.Now.
	Now func() time.Time
}

// DefaultBuildOptions returns the recommended settings.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MinQuality:           0.7,
		MaxVariants:          5,
		KeywordCount:         10,
		RelatedCount:         3,
		MinTemplateFrequency: 2,
		MinTemplateLength:    10,
		MaxTemplates:         50,
		Now:                  time.Now,
	}
}

// Builder mines FAQ entries and reply templates from quality conversations.
// It is a batch job; publish its output through a Registry.
type Builder struct {
	lex    lexicon.Bundle
	ranker *segment.Ranker
	opts   BuildOptions
}

// NewBuilder returns a Builder. A nil seg selects a dictionary segmenter
// over the classifier and matcher vocabularies.
func NewBuilder(lex lexicon.Bundle, seg segment.Segmenter, opts BuildOptions) *Builder {
	def := DefaultBuildOptions()
	if opts.MinQuality <= 0 {
		opts.MinQuality = def.MinQuality
	}
	if opts.MaxVariants <= 0 {
		opts.MaxVariants = def.MaxVariants
	}
	if opts.KeywordCount <= 0 {
		opts.KeywordCount = def.KeywordCount
	}
	if opts.RelatedCount <= 0 {
		opts.RelatedCount = def.RelatedCount
	}
	if opts.MinTemplateFrequency <= 0 {
		opts.MinTemplateFrequency = def.MinTemplateFrequency
	}
	if opts.MinTemplateLength <= 0 {
		opts.MinTemplateLength = def.MinTemplateLength
	}
	if opts.MaxTemplates <= 0 {
		opts.MaxTemplates = def.MaxTemplates
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if seg == nil {
		seg = segment.NewDictionary(lex.ClassifierWords(), lex.MatcherWords())
	}
	return &Builder{lex: lex, ranker: segment.NewRanker(seg, lex.Stopwords), opts: opts}
}

type qaPair struct {
	question string
	answer   string
}

type questionGroup struct {
	pairs []qaPair
}

// Build returns the knowledge base mined from convs.
func (b *Builder) Build(convs []*dialog.Conversation) Document {
	var used []*dialog.Conversation
	for _, c := range convs {
		if c != nil && c.QualityScore >= b.opts.MinQuality {
			used = append(used, c)
		}
	}

	groups := map[string]*questionGroup{}
	var order []string
	for _, c := range used {
		for _, p := range b.pairs(c) {
			key := Normalize(p.question)
			if key == "" {
				continue
			}
			g, ok := groups[key]
			if !ok {
				g = &questionGroup{}
				groups[key] = g
				order = append(order, key)
			}
			g.pairs = append(g.pairs, p)
		}
	}

	stamp := b.opts.Now().Format("2006-01-02")
	doc := Document{FAQs: make([]FAQEntry, 0, len(order))}
	for i, key := range order {
		entry := b.entry(groups[key])
		entry.ID = fmt.Sprintf("FAQ_%03d", i+1)
		entry.UpdatedAt = stamp
		doc.FAQs = append(doc.FAQs, entry)
	}
	linkRelated(doc.FAQs, b.opts.RelatedCount)
	doc.Templates = b.templates(used, stamp)
	return doc
}

// pairs links each question-like user message to the next agent reply.
func (b *Builder) pairs(c *dialog.Conversation) []qaPair {
	msgs := c.RealMessages()
	var out []qaPair
	for i, m := range msgs {
		if m.Role != dialog.RoleUser || !b.isQuestion(m.CleanContent) {
			continue
		}
		for _, next := range msgs[i+1:] {
			if next.Role == dialog.RoleAgent {
				out = append(out, qaPair{question: m.CleanContent, answer: next.CleanContent})
				break
			}
		}
	}
	return out
}

func (b *Builder) isQuestion(text string) bool {
	if strings.ContainsAny(text, "?？") {
		return true
	}
	for _, w := range b.lex.QuestionWords {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (b *Builder) entry(g *questionGroup) FAQEntry {
	standard := g.pairs[0].question

	counts := map[string]int{}
	answer, best := "", 0
	var variants []string
	seen := map[string]bool{standard: true}
	var text strings.Builder
	for _, p := range g.pairs {
		counts[p.answer]++
		if counts[p.answer] > best {
			answer, best = p.answer, counts[p.answer]
		}
		if !seen[p.question] && len(variants) < b.opts.MaxVariants {
			seen[p.question] = true
			variants = append(variants, p.question)
		}
		text.WriteString(p.question)
		text.WriteByte(' ')
		text.WriteString(p.answer)
		text.WriteByte(' ')
	}
	keywords := b.ranker.Top(text.String(), b.opts.KeywordCount)

	return FAQEntry{
		Category: b.category(g, keywords),
		Question: Question{Standard: standard, Variants: variants},
		Answer:   Answer{Standard: answer, Keywords: keywords},
	}
}

// category scores +1 per keyword related to a category word and +2 per
// question containing one. The first highest category wins.
func (b *Builder) category(g *questionGroup, keywords []string) string {
	best, bestScore := lexicon.DefaultCategory, 0
	for _, cat := range b.lex.Categories {
		score := 0
		for _, kw := range keywords {
			for _, ck := range cat.Keywords {
				if strings.Contains(kw, ck) || strings.Contains(ck, kw) {
					score++
					break
				}
			}
		}
		for _, p := range g.pairs {
			for _, ck := range cat.Keywords {
				if strings.Contains(p.question, ck) {
					score += 2
					break
				}
			}
		}
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

// linkRelated fills Related with up to n entries sharing keywords, most
// similar first.
func linkRelated(faqs []FAQEntry, n int) {
	type scored struct {
		id  string
		sim float64
	}
	for i := range faqs {
		var cands []scored
		for j := range faqs {
			if i == j {
				continue
			}
			if sim := Jaccard(faqs[i].Answer.Keywords, faqs[j].Answer.Keywords); sim > 0 {
				cands = append(cands, scored{faqs[j].ID, sim})
			}
		}
		slices.SortStableFunc(cands, func(a, b scored) int { return cmp.Compare(b.sim, a.sim) })
		faqs[i].Related = nil
		for k := 0; k < len(cands) && k < n; k++ {
			faqs[i].Related = append(faqs[i].Related, cands[k].id)
		}
	}
}

// templates collects agent replies repeated across conversations.
func (b *Builder) templates(convs []*dialog.Conversation, stamp string) []Template {
	counts := map[string]int{}
	var order []string
	for _, c := range convs {
		inConv := map[string]bool{}
		for _, m := range c.RealMessages() {
			content := m.CleanContent
			if m.Role != dialog.RoleAgent || inConv[content] || utf8.RuneCountInString(content) <= b.opts.MinTemplateLength {
				continue
			}
			inConv[content] = true
			if counts[content] == 0 {
				order = append(order, content)
			}
			counts[content]++
		}
	}
	slices.SortStableFunc(order, func(x, y string) int { return cmp.Compare(counts[y], counts[x]) })

	var out []Template
	for _, content := range order {
		if counts[content] < b.opts.MinTemplateFrequency || len(out) == b.opts.MaxTemplates {
			break
		}
		category, scenario := b.templateCategory(content)
		out = append(out, Template{
			ID:        fmt.Sprintf("TEMP_%03d", len(out)+1),
			Category:  category,
			Scenario:  scenario,
			Content:   content,
			UsageTips: fmt.Sprintf("用于%s场景的标准回复", scenario),
			UpdatedAt: stamp,
		})
	}
	return out
}

func (b *Builder) templateCategory(content string) (string, string) {
	for _, r := range b.lex.TemplateRules {
		ok := true
		for _, w := range r.Require {
			if !strings.Contains(content, w) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if len(r.Any) == 0 || containsAny(content, r.Any...) {
			return r.Category, r.Scenario
		}
	}
	return defaultTemplateCategory, defaultTemplateScenario
}
