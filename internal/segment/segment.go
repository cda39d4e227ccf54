// Package segment splits Chinese customer-service text into words.
//
// The pipeline only depends on the Segmenter interface. The default
// implementation is a dictionary forward-maximum-matching segmenter: at each
// position it takes the longest dictionary word that fits, falling back to a
// single character. Runs of ASCII letters and digits are kept whole, and
// punctuation and whitespace are dropped.
package segment

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter splits text into tokens.
type Segmenter interface {
	Segment(text string) []string
}

// Dictionary is a forward-maximum-matching Segmenter. It is immutable after
// construction and safe for concurrent use.
type Dictionary struct {
	words  map[string]struct{}
	maxLen int
}

// NewDictionary builds a segmenter from one or more word lists. Words are
// lower-cased; single-character and blank entries are ignored.
func NewDictionary(lists ...[]string) *Dictionary {
	d := &Dictionary{words: map[string]struct{}{}, maxLen: 1}
	for _, list := range lists {
		for _, w := range list {
			w = strings.ToLower(strings.TrimSpace(w))
			n := utf8.RuneCountInString(w)
			if n < 2 {
				continue
			}
			d.words[w] = struct{}{}
			if n > d.maxLen {
				d.maxLen = n
			}
		}
	}
	return d
}

// Len returns the number of dictionary words.
func (d *Dictionary) Len() int { return len(d.words) }

// Contains reports whether w is a dictionary word.
func (d *Dictionary) Contains(w string) bool {
	_, ok := d.words[strings.ToLower(w)]
	return ok
}

// Segment implements Segmenter.
func (d *Dictionary) Segment(text string) []string {
	runes := []rune(strings.ToLower(text))
	var tokens []string
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case isASCIIAlnum(r):
			j := i + 1
			for j < len(runes) && isASCIIAlnum(runes[j]) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		case isSeparator(r):
			i++
		default:
			n := d.longestMatch(runes, i)
			tokens = append(tokens, string(runes[i:i+n]))
			i += n
		}
	}
	return tokens
}

// longestMatch returns the rune length of the longest dictionary word
// starting at i, or 1 when none matches.
func (d *Dictionary) longestMatch(runes []rune, i int) int {
	limit := 0
	for i+limit < len(runes) && limit < d.maxLen {
		r := runes[i+limit]
		if isSeparator(r) || isASCIIAlnum(r) {
			break
		}
		limit++
	}
	for n := limit; n >= 2; n-- {
		if _, ok := d.words[string(runes[i:i+n])]; ok {
			return n
		}
	}
	return 1
}

func isASCIIAlnum(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsControl(r)
}

// Ranker extracts frequency-ranked keywords from segmented text.
type Ranker struct {
	seg  Segmenter
	stop map[string]struct{}
}

// NewRanker returns a Ranker over seg that ignores the given stopwords.
func NewRanker(seg Segmenter, stopwords []string) *Ranker {
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Ranker{seg: seg, stop: stop}
}

// Tokens returns the tokens of text that can serve as keywords: at least two
// runes long and not a stopword, in text order.
func (r *Ranker) Tokens(text string) []string {
	var out []string
	for _, tok := range r.seg.Segment(text) {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if _, ok := r.stop[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Top returns up to k keywords ordered by frequency, then first occurrence.
// k <= 0 returns all keywords.
func (r *Ranker) Top(text string, k int) []string {
	type entry struct {
		word  string
		count int
		first int
	}
	index := map[string]*entry{}
	var entries []*entry
	for pos, tok := range r.Tokens(text) {
		if e, ok := index[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1, first: pos}
		index[tok] = e
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})
	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.word
	}
	return out
}
