package knowledge

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/hurttlocker/convoscope/internal/segment"
)

// Base is an immutable snapshot of a knowledge base prepared for matching.
type Base struct {
	faqs      []FAQEntry
	templates []Template
	seg       segment.Segmenter

	// precomputed per FAQ, index-aligned with faqs
	normStandard []string
	normVariants [][]string
	lowerQs      [][]string
	keywords     [][]string
	keywordSet   []map[string]bool
}

// NewBase copies doc and builds a segmenter whose dictionary is the FAQ
// keywords plus vocabulary.
func NewBase(doc Document, vocabulary []string) *Base {
	b := &Base{
		faqs:      append([]FAQEntry(nil), doc.FAQs...),
		templates: append([]Template(nil), doc.Templates...),
	}
	words := append([]string(nil), vocabulary...)
	for _, f := range b.faqs {
		words = append(words, f.Answer.Keywords...)
	}
	b.seg = segment.NewDictionary(words)

	for _, f := range b.faqs {
		b.normStandard = append(b.normStandard, Normalize(f.Question.Standard))
		var nv []string
		lower := []string{strings.ToLower(f.Question.Standard)}
		for _, v := range f.Question.Variants {
			nv = append(nv, Normalize(v))
			lower = append(lower, strings.ToLower(v))
		}
		b.normVariants = append(b.normVariants, nv)
		b.lowerQs = append(b.lowerQs, lower)
		kws := make([]string, 0, len(f.Answer.Keywords))
		set := make(map[string]bool, len(f.Answer.Keywords))
		for _, k := range f.Answer.Keywords {
			k = strings.ToLower(k)
			kws = append(kws, k)
			set[k] = true
		}
		b.keywords = append(b.keywords, kws)
		b.keywordSet = append(b.keywordSet, set)
	}
	return b
}

// Len returns the number of FAQ entries.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.faqs)
}

// FAQs returns a copy of the FAQ entries.
func (b *Base) FAQs() []FAQEntry {
	if b == nil {
		return nil
	}
	return append([]FAQEntry(nil), b.faqs...)
}

// Templates returns a copy of the reply templates.
func (b *Base) Templates() []Template {
	if b == nil {
		return nil
	}
	return append([]Template(nil), b.templates...)
}

// Keywords segments text into the distinct tokens of at least two runes,
// in text order.
func (b *Base) Keywords(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range b.seg.Segment(text) {
		if utf8.RuneCountInString(tok) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

type snapshot struct {
	base       *Base
	generation uint64
}

// Registry publishes knowledge base snapshots. Readers always see a
// complete Base; Swap replaces it atomically and bumps the generation.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry returns a registry serving b, which may be nil.
func NewRegistry(b *Base) *Registry {
	r := &Registry{}
	r.current.Store(&snapshot{base: b})
	return r
}

// Load returns the current snapshot.
func (r *Registry) Load() *Base {
	return r.current.Load().base
}

// Generation returns the number of swaps performed so far.
func (r *Registry) Generation() uint64 {
	return r.current.Load().generation
}

func (r *Registry) snapshot() *snapshot {
	return r.current.Load()
}

// Swap publishes b and returns the previous snapshot.
func (r *Registry) Swap(b *Base) *Base {
	for {
		old := r.current.Load()
		next := &snapshot{base: b, generation: old.generation + 1}
		if r.current.CompareAndSwap(old, next) {
			return old.base
		}
	}
}
