// Package assemble turns unordered, partially labelled event-log rows into
// ordered conversations.
//
// For each conversation the assembler:
//   - drops malformed rows (no conversation id) and rows without content
//   - picks one ordering key: sequence numbers when every row has a distinct
//     one, else timestamps when every row parses, else arrival order
//   - resolves every message role through a fixed cascade (explicit label,
//     keyword cues, alternation, first-message default, seeded fallback)
//   - optionally synthesizes an agent greeting and closing
//
// Assembly never fails: problems are counted in Diagnostics and the
// conversation is built from whatever survives.
package assemble

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

// FallbackMode selects how roles the cascade cannot decide are assigned.
type FallbackMode string

const (
	// FallbackRatio draws the role from the conversation's observed
	// user/agent ratio using a seeded generator.
	FallbackRatio FallbackMode = "ratio"
	// FallbackUser assigns user.
	FallbackUser FallbackMode = "user"
)

// Config controls assembly.
type Config struct {
	// SynthesizeGreeting prepends an agent greeting when the conversation
	// does not open with one. Default: true.
	SynthesizeGreeting bool

	// SynthesizeClosing appends an agent closing when the conversation does
	// not end with one. Default: true.
	SynthesizeClosing bool

	// Seed pins the ratio fallback. The generator for each conversation is
	// seeded from Seed and the conversation id, so results do not depend on
	// processing order. Default: 42.
	Seed int64

	// Fallback is the last step of the role cascade. Default: ratio.
	//
	// The ratio is the user share among the explicit and keyword-resolved
	// messages of the same conversation (0.5 when there are none), not the
	// share across the whole batch. A per-conversation ratio keeps each
	// conversation's roles independent of which other conversations are
	// in the run and of how they are spread over workers.
	Fallback FallbackMode
}

// DefaultConfig returns the default assembly settings.
func DefaultConfig() Config {
	return Config{
		SynthesizeGreeting: true,
		SynthesizeClosing:  true,
		Seed:               42,
		Fallback:           FallbackRatio,
	}
}

// Assembler builds conversations. It holds only immutable configuration and
// is safe for concurrent use.
type Assembler struct {
	cfg       Config
	agentCues []string
	userCues  []string
	markers   lexicon.Markers
}

// New returns an Assembler using the role cues and markers from lex.
func New(lex lexicon.Bundle, cfg Config) *Assembler {
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackRatio
	}
	return &Assembler{
		cfg:       cfg,
		agentCues: append([]string(nil), lex.Roles.Agent...),
		userCues:  append([]string(nil), lex.Roles.User...),
		markers:   lex.Markers,
	}
}

// pending is a validated row waiting to become a message.
type pending struct {
	rec     dialog.RawRecord
	content string
	seq     int
	seqOK   bool
	ts      time.Time
	tsOK    bool
}

// Assemble builds the conversation id from its records. It returns nil when
// no record survives validation.
func (a *Assembler) Assemble(id string, records []dialog.RawRecord) (*dialog.Conversation, Diagnostics) {
	var diag Diagnostics
	diag.Records = len(records)

	rows := make([]pending, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.ConversationID) == "" {
			diag.Malformed++
			diag.addIssue(Issue{Err: dialog.ErrMalformedRecord, File: rec.SourceFile, Line: rec.SourceLine, Detail: "missing conversation_id"})
			continue
		}
		content := strings.TrimSpace(rec.ContentString())
		if content == "" {
			diag.EmptyContent++
			continue
		}
		p := pending{rec: rec, content: content}
		p.seq, p.seqOK = parseSequence(rec.SequenceNo)
		p.ts, p.tsOK = parseTimestamp(rec.Timestamp)
		if !p.tsOK && strings.TrimSpace(rec.Timestamp) != "" {
			diag.UnparseableTimestamps++
			diag.addIssue(Issue{Err: dialog.ErrUnparseableTimestamp, ConversationID: id, File: rec.SourceFile, Line: rec.SourceLine, Detail: rec.Timestamp})
		}
		rows = append(rows, p)
	}

	if len(rows) == 0 {
		diag.EmptyConversations++
		return nil, diag
	}

	rows, diag.Ordering, diag.DuplicateSequence = order(rows)

	conv := &dialog.Conversation{ID: id}
	conv.Messages = make([]dialog.Message, len(rows))
	for i, p := range rows {
		m := dialog.Message{
			SequenceNo:   p.seq,
			Content:      p.content,
			CleanContent: dialog.Clean(p.content),
		}
		if p.tsOK {
			m.Timestamp = p.ts
		}
		conv.Messages[i] = m
	}

	diag.RatioRoles = a.resolveRoles(id, conv.Messages, rows)
	conv.Metadata = buildMetadata(rows)
	diag.SyntheticMessages = a.synthesize(conv)
	diag.Conversations = 1
	return conv, diag
}

// AssembleAll groups records by conversation id, in first-seen order, and
// assembles each group. Records without a conversation id are counted as
// malformed and skipped.
func (a *Assembler) AssembleAll(records []dialog.RawRecord) ([]*dialog.Conversation, Diagnostics) {
	groups, order, malformed := Group(records)

	diag := MalformedDiagnostics(malformed)
	var convs []*dialog.Conversation
	for _, id := range order {
		conv, d := a.Assemble(id, groups[id])
		diag.Merge(d)
		if conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, diag
}

// MalformedDiagnostics counts records that Group could not place.
func MalformedDiagnostics(malformed []dialog.RawRecord) Diagnostics {
	var diag Diagnostics
	diag.Records = len(malformed)
	for _, rec := range malformed {
		diag.Malformed++
		diag.addIssue(Issue{Err: dialog.ErrMalformedRecord, File: rec.SourceFile, Line: rec.SourceLine, Detail: "missing conversation_id"})
	}
	return diag
}

// Group splits records by trimmed conversation id. It returns the groups,
// the ids in first-seen order and the records without an id.
func Group(records []dialog.RawRecord) (map[string][]dialog.RawRecord, []string, []dialog.RawRecord) {
	groups := map[string][]dialog.RawRecord{}
	var order []string
	var malformed []dialog.RawRecord
	for _, rec := range records {
		id := strings.TrimSpace(rec.ConversationID)
		if id == "" {
			malformed = append(malformed, rec)
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], rec)
	}
	return groups, order, malformed
}

// order sorts rows by the single ordering key available to all of them and
// assigns final sequence numbers. Duplicate sequence numbers make the
// sequence key unusable: every row is kept and ordered by timestamp, or by
// arrival when a timestamp does not parse. The duplicates are still counted.
func order(rows []pending) ([]pending, Ordering, int) {
	allSeq, allTS := true, true
	for _, p := range rows {
		allSeq = allSeq && p.seqOK
		allTS = allTS && p.tsOK
	}

	dups := 0
	if allSeq {
		dups = duplicateSequences(rows)
		if dups == 0 {
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
			return rows, OrderBySequence, 0
		}
	}

	if allTS {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })
		renumber(rows)
		return rows, OrderByTimestamp, dups
	}
	renumber(rows)
	return rows, OrderByArrival, dups
}

// duplicateSequences counts rows whose sequence number was already seen.
func duplicateSequences(rows []pending) int {
	seen := make(map[int]bool, len(rows))
	dups := 0
	for _, p := range rows {
		if seen[p.seq] {
			dups++
			continue
		}
		seen[p.seq] = true
	}
	return dups
}

func renumber(rows []pending) {
	for i := range rows {
		rows[i].seq = i + 1
	}
}

func parseSequence(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := cast.ToTimeInDefaultLocationE(raw, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// resolveRoles runs the role cascade over msgs and returns the number of
// roles decided by the final fallback.
//
// Explicit labels and keyword cues are decided first, since they depend only
// on the message itself. The remaining messages are then folded in order:
// the complement of the previous user/agent role, user for the first
// message, and finally the configured fallback.
func (a *Assembler) resolveRoles(id string, msgs []dialog.Message, rows []pending) int {
	var users, agents int
	for i := range msgs {
		m := &msgs[i]
		if r, ok := dialog.ParseRole(rows[i].rec.SenderRole); ok {
			m.Role, m.RoleSource = r, dialog.RoleFromExplicit
		} else if r, ok := a.keywordRole(m.CleanContent); ok {
			m.Role, m.RoleSource = r, dialog.RoleFromKeyword
		} else {
			continue
		}
		switch m.Role {
		case dialog.RoleUser:
			users++
		case dialog.RoleAgent:
			agents++
		}
	}

	pUser := 0.5
	if users+agents > 0 {
		pUser = float64(users) / float64(users+agents)
	}
	var rng *rand.Rand

	fallbacks := 0
	var prev dialog.Role
	for i := range msgs {
		m := &msgs[i]
		if m.Role == "" {
			if c, ok := prev.Complement(); ok {
				m.Role, m.RoleSource = c, dialog.RoleFromAlternate
			} else if i == 0 {
				m.Role, m.RoleSource = dialog.RoleUser, dialog.RoleFromFirst
			} else {
				fallbacks++
				m.RoleSource = dialog.RoleFromRatio
				m.Role = dialog.RoleUser
				if a.cfg.Fallback == FallbackRatio {
					if rng == nil {
						rng = rand.New(rand.NewSource(a.cfg.Seed ^ int64(hashID(id))))
					}
					if rng.Float64() >= pUser {
						m.Role = dialog.RoleAgent
					}
				}
			}
		}
		prev = m.Role
	}
	return fallbacks
}

// keywordRole compares agent and user cue hits. ok is false on a tie.
func (a *Assembler) keywordRole(text string) (dialog.Role, bool) {
	agent := countHits(text, a.agentCues)
	user := countHits(text, a.userCues)
	switch {
	case agent > user:
		return dialog.RoleAgent, true
	case user > agent:
		return dialog.RoleUser, true
	}
	return "", false
}

func countHits(text string, cues []string) int {
	n := 0
	for _, c := range cues {
		if c != "" && strings.Contains(text, c) {
			n++
		}
	}
	return n
}

func containsAny(text string, words []string) bool {
	return countHits(text, words) > 0
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func buildMetadata(rows []pending) dialog.Metadata {
	var md dialog.Metadata
	for _, p := range rows {
		r := p.rec
		md.BusinessGroup = firstNonEmpty(md.BusinessGroup, r.BusinessGroup)
		md.FeedbackLabel = firstNonEmpty(md.FeedbackLabel, r.FeedbackLabel)
		md.UserName = firstNonEmpty(md.UserName, r.UserName)
		md.AgentName = firstNonEmpty(md.AgentName, r.AgentName)
		md.SourceFile = firstNonEmpty(md.SourceFile, r.SourceFile)
		if !p.tsOK {
			continue
		}
		if md.StartTime.IsZero() || p.ts.Before(md.StartTime) {
			md.StartTime = p.ts
		}
		if p.ts.After(md.EndTime) {
			md.EndTime = p.ts
		}
	}
	return md
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return strings.TrimSpace(candidate)
}

// synthesize adds the agent greeting and closing when they are missing and
// returns how many messages were added. Real messages are never changed.
func (a *Assembler) synthesize(conv *dialog.Conversation) int {
	added := 0
	first := conv.Messages[0]
	if a.cfg.SynthesizeGreeting && a.markers.SyntheticGreeting != "" &&
		!(first.Role == dialog.RoleAgent && containsAny(first.CleanContent, a.markers.Greeting)) {
		g := syntheticMessage(a.markers.SyntheticGreeting, first.SequenceNo-1)
		if !first.Timestamp.IsZero() {
			g.Timestamp = first.Timestamp.Add(-time.Second)
		}
		conv.Messages = append([]dialog.Message{g}, conv.Messages...)
		added++
	}

	last := conv.Messages[len(conv.Messages)-1]
	if a.cfg.SynthesizeClosing && a.markers.SyntheticClosing != "" &&
		!(last.Role == dialog.RoleAgent && containsAny(last.CleanContent, a.markers.Closing)) {
		c := syntheticMessage(a.markers.SyntheticClosing, last.SequenceNo+1)
		if !last.Timestamp.IsZero() {
			c.Timestamp = last.Timestamp.Add(time.Second)
		}
		conv.Messages = append(conv.Messages, c)
		added++
	}
	return added
}

func syntheticMessage(text string, seq int) dialog.Message {
	return dialog.Message{
		SequenceNo:   seq,
		Role:         dialog.RoleAgent,
		RoleSource:   dialog.RoleFromSynthetic,
		Content:      text,
		CleanContent: dialog.Clean(text),
		Synthetic:    true,
	}
}
