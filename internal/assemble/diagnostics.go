package assemble

import "fmt"

// Ordering names the key used to order a conversation's messages.
type Ordering string

const (
	OrderBySequence  Ordering = "sequence"
	OrderByTimestamp Ordering = "timestamp"
	OrderByArrival   Ordering = "arrival"
)

// maxIssues caps the per-run issue list; counters keep counting past it.
const maxIssues = 1000

// Issue describes one problem row.
type Issue struct {
	Err            error
	ConversationID string
	File           string
	Line           int
	Detail         string
}

func (i Issue) String() string {
	loc := i.File
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", i.File, i.Line)
	}
	return fmt.Sprintf("%v (%s) %s", i.Err, loc, i.Detail)
}

// Diagnostics counts what assembly dropped, repaired or guessed.
type Diagnostics struct {
	Records               int      `json:"records"`
	Conversations         int      `json:"conversations"`
	EmptyConversations    int      `json:"empty_conversations"`
	Malformed             int      `json:"malformed"`
	EmptyContent          int      `json:"empty_content"`
	DuplicateSequence     int      `json:"duplicate_sequence"`
	UnparseableTimestamps int      `json:"unparseable_timestamps"`
	RatioRoles            int      `json:"ratio_roles"`
	SyntheticMessages     int      `json:"synthetic_messages"`
	Ordering              Ordering `json:"ordering,omitempty"`
	Issues                []Issue  `json:"-"`
}

func (d *Diagnostics) addIssue(i Issue) {
	if len(d.Issues) < maxIssues {
		d.Issues = append(d.Issues, i)
	}
}

// Merge adds the counters and issues of o into d. Ordering is per
// conversation and is not merged.
func (d *Diagnostics) Merge(o Diagnostics) {
	d.Records += o.Records
	d.Conversations += o.Conversations
	d.EmptyConversations += o.EmptyConversations
	d.Malformed += o.Malformed
	d.EmptyContent += o.EmptyContent
	d.DuplicateSequence += o.DuplicateSequence
	d.UnparseableTimestamps += o.UnparseableTimestamps
	d.RatioRoles += o.RatioRoles
	d.SyntheticMessages += o.SyntheticMessages
	for _, i := range o.Issues {
		d.addIssue(i)
	}
}
