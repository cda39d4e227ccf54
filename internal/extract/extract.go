// Package extract finds business entities (order ids, tracking numbers,
// phone numbers, amounts, products) in message text and spreads them across
// a conversation.
//
// Extraction is table driven: each row of the pattern table is a regular
// expression tagged with an entity type. Order ids are claimed first; any
// later match that overlaps a claimed order id is discarded, as is a
// tracking number whose value is contained in one. Tracking numbers are
// claimed next, and phone numbers or amounts inside them are discarded.
// Go's RE2 engine has no
// lookaround, so "not preceded or followed by a digit" is checked around
// each match instead.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// pattern is a compiled row of the extraction table.
type pattern struct {
	regex      *regexp.Regexp
	entityType dialog.EntityType
	name       string
	group      int
	boundary   string
	mixed      bool
}

// Extractor applies a compiled pattern table. It holds no mutable state and
// is safe for concurrent use.
type Extractor struct {
	patterns []*pattern
}

// New compiles the pattern table. Order-id patterns are moved to the front,
// followed by tracking-number patterns, so that their claims are in place
// before other types are matched.
func New(table []lexicon.EntityPattern) (*Extractor, error) {
	x := &Extractor{}
	for _, row := range table {
		re, err := regexp.Compile(row.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", row.Name, err)
		}
		if row.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern %s: group %d out of range", row.Name, row.Group)
		}
		x.patterns = append(x.patterns, &pattern{
			regex:      re,
			entityType: row.Type,
			name:       row.Name,
			group:      row.Group,
			boundary:   row.Boundary,
			mixed:      row.Mixed,
		})
	}
	sort.SliceStable(x.patterns, func(i, j int) bool {
		return claimRank(x.patterns[i].entityType) < claimRank(x.patterns[j].entityType)
	})
	return x, nil
}

func claimRank(t dialog.EntityType) int {
	switch t {
	case dialog.EntityOrderID:
		return 0
	case dialog.EntityTrackingNumber:
		return 1
	}
	return 2
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// Extract returns the entities found in text, ordered by pattern priority
// and then by position. Duplicate (type, value) pairs are reported once.
func (x *Extractor) Extract(text string) []dialog.Entity {
	if text == "" {
		return nil
	}

	var out []dialog.Entity
	var claims, trackingClaims []span
	var claimed []string
	seen := map[dialog.Entity]bool{}

	for _, p := range x.patterns {
		for _, loc := range p.regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 || start == end {
				continue
			}
			if !p.boundaryOK(text, start, end) {
				continue
			}
			value := strings.TrimSpace(text[start:end])
			if p.mixed && !hasLetterAndDigit(value) {
				continue
			}

			s := span{start, end}
			if p.entityType != dialog.EntityOrderID && conflictsWithOrderID(p.entityType, s, value, claims, claimed) {
				continue
			}
			if (p.entityType == dialog.EntityPhone || p.entityType == dialog.EntityMoney) && overlapsAny(s, trackingClaims) {
				continue
			}

			e := dialog.Entity{Type: p.entityType, Value: value}
			if seen[e] {
				continue
			}
			seen[e] = true

			switch p.entityType {
			case dialog.EntityOrderID:
				claims = append(claims, s)
				claimed = append(claimed, value)
			case dialog.EntityTrackingNumber:
				trackingClaims = append(trackingClaims, s)
			}
			out = append(out, e)
		}
	}
	return out
}

// conflictsWithOrderID reports whether a match must yield to a claimed
// order id. Any type loses on overlap; tracking numbers also lose when their
// value is a substring of a claimed order id.
func conflictsWithOrderID(t dialog.EntityType, s span, value string, claims []span, claimed []string) bool {
	if overlapsAny(s, claims) {
		return true
	}
	if t != dialog.EntityTrackingNumber {
		return false
	}
	for _, id := range claimed {
		if strings.Contains(id, value) {
			return true
		}
	}
	return false
}

func overlapsAny(s span, claims []span) bool {
	for _, c := range claims {
		if s.overlaps(c) {
			return true
		}
	}
	return false
}

// boundaryOK rejects matches glued to neighbouring characters of the
// pattern's boundary class.
func (p *pattern) boundaryOK(text string, start, end int) bool {
	var in func(rune) bool
	switch p.boundary {
	case "digit":
		in = isDigit
	case "alnum":
		in = isAlnum
	default:
		return true
	}
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); in(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); in(r) {
			return false
		}
	}
	return true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isAlnum(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case isDigit(r):
			digit = true
		case isAlnum(r):
			letter = true
		}
	}
	return letter && digit
}

// Annotate extracts entities for every message of conv, replacing any
// previous annotation, then propagates them across the conversation.
func (x *Extractor) Annotate(conv *dialog.Conversation) {
	for i := range conv.Messages {
		m := &conv.Messages[i]
		text := m.CleanContent
		if text == "" {
			text = m.Content
		}
		found := x.Extract(text)
		for j := range found {
			found[j].MessageSeq = m.SequenceNo
		}
		m.Entities = found
	}
	Propagate(conv)
}
