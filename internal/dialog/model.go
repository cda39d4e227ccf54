// Package dialog defines the conversation data model shared by every stage
// of the convoscope pipeline.
//
// Raw event-log rows come in as RawRecord values. The assembler turns them
// into ordered Conversations made of Messages; later stages annotate those
// conversations in place (entities, quality verdict) without changing the
// message order or content.
package dialog

import (
	"errors"
	"time"
)

var (
	// ErrMalformedRecord marks a raw row missing a required field.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnparseableTimestamp marks a timestamp that could not be parsed.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")

	// ErrEmptyConversation marks a conversation with no usable messages.
	ErrEmptyConversation = errors.New("empty conversation")
)

// RawRecord is one row of a customer-service event log, before any
// normalization. Every field except ConversationID may be empty.
type RawRecord struct {
	ConversationID string  `json:"conversation_id"`
	SequenceNo     string  `json:"sequence_no,omitempty"`
	SenderRole     string  `json:"sender_role,omitempty"`
	Content        *string `json:"message_content"`
	Timestamp      string  `json:"send_timestamp,omitempty"`
	BusinessGroup  string  `json:"business_group,omitempty"`
	FeedbackLabel  string  `json:"feedback_label,omitempty"`
	UserName       string  `json:"user_name,omitempty"`
	AgentName      string  `json:"agent_name,omitempty"`

	// Provenance, set by importers.
	SourceFile string `json:"-"`
	SourceLine int    `json:"-"`
}

// ContentString returns the record content, or "" when it is null.
func (r RawRecord) ContentString() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// RoleSource records which step of the role cascade decided a message role.
type RoleSource string

const (
	RoleFromExplicit  RoleSource = "explicit"
	RoleFromKeyword   RoleSource = "keyword"
	RoleFromAlternate RoleSource = "alternate"
	RoleFromFirst     RoleSource = "first"
	RoleFromRatio     RoleSource = "ratio"
	RoleFromSynthetic RoleSource = "synthetic"
)

// Message is a single utterance inside an assembled conversation.
type Message struct {
	SequenceNo   int        `json:"sequence_no"`
	Role         Role       `json:"role"`
	RoleSource   RoleSource `json:"role_source"`
	Content      string     `json:"content"`
	CleanContent string     `json:"clean_content"`
	Timestamp    time.Time  `json:"timestamp,omitzero"`
	Synthetic    bool       `json:"synthetic,omitempty"`
	Entities     []Entity   `json:"entities,omitempty"`
}

// HasEntity reports whether the message carries an entity of type t,
// own or inherited.
func (m *Message) HasEntity(t EntityType) bool {
	for _, e := range m.Entities {
		if e.Type == t {
			return true
		}
	}
	return false
}

// Metadata holds per-conversation attributes taken from the raw rows.
type Metadata struct {
	BusinessGroup string    `json:"business_group,omitempty"`
	FeedbackLabel string    `json:"feedback_label,omitempty"`
	UserName      string    `json:"user_name,omitempty"`
	AgentName     string    `json:"agent_name,omitempty"`
	StartTime     time.Time `json:"start_time,omitzero"`
	EndTime       time.Time `json:"end_time,omitzero"`
	SourceFile    string    `json:"source_file,omitempty"`
}

// QualityVerdict is the outcome of the quality filter.
type QualityVerdict struct {
	Accepted  bool               `json:"accepted"`
	Score     float64            `json:"score"`
	Reason    string             `json:"reason,omitempty"`
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
}

// Conversation is an ordered exchange between a user and an agent.
type Conversation struct {
	ID             string                  `json:"id"`
	Messages       []Message               `json:"messages"`
	Metadata       Metadata                `json:"metadata"`
	StructuredInfo map[EntityType][]string `json:"structured_info,omitempty"`
	QualityScore   float64                 `json:"quality_score"`
	Quality        *QualityVerdict         `json:"quality,omitempty"`
}

// UserMessages returns the non-synthetic messages sent by the user.
func (c *Conversation) UserMessages() []*Message {
	var out []*Message
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.Role == RoleUser && !m.Synthetic {
			out = append(out, m)
		}
	}
	return out
}

// RealMessages returns the messages that came from the event log.
func (c *Conversation) RealMessages() []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for i := range c.Messages {
		if !c.Messages[i].Synthetic {
			out = append(out, &c.Messages[i])
		}
	}
	return out
}

// HasEntity reports whether any message in the conversation carries t.
func (c *Conversation) HasEntity(t EntityType) bool {
	return len(c.StructuredInfo[t]) > 0
}

// Accepted reports whether the quality filter accepted the conversation.
func (c *Conversation) Accepted() bool {
	return c.Quality != nil && c.Quality.Accepted
}

// EntityType names a kind of business entity.
type EntityType string

const (
	EntityOrderID        EntityType = "order_id"
	EntityTrackingNumber EntityType = "tracking_number"
	EntityPhone          EntityType = "phone"
	EntityMoney          EntityType = "money"
	EntityProduct        EntityType = "product"
)

// EntityTypes lists the built-in entity types in extraction priority order.
var EntityTypes = []EntityType{
	EntityOrderID,
	EntityTrackingNumber,
	EntityPhone,
	EntityMoney,
	EntityProduct,
}

// Entity is a typed value found in (or inherited by) a message.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	MessageSeq int        `json:"message_seq"`
	Inherited  bool       `json:"inherited,omitempty"`
}
