package ingest

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// field is a RawRecord attribute an input column can map to.
type field int

const (
	fieldUnknown field = iota
	fieldConversationID
	fieldSequenceNo
	fieldSenderRole
	fieldContent
	fieldTimestamp
	fieldBusinessGroup
	fieldFeedbackLabel
	fieldUserName
	fieldAgentName
)

var columnAliases = map[string]field{
	"conversation_id": fieldConversationID,
	"touch_id":        fieldConversationID,
	"session_id":      fieldConversationID,
	"sequence_no":     fieldSequenceNo,
	"seq_no":          fieldSequenceNo,
	"seq":             fieldSequenceNo,
	"sender_role":     fieldSenderRole,
	"sender_type":     fieldSenderRole,
	"role":            fieldSenderRole,
	"message_content": fieldContent,
	"send_content":    fieldContent,
	"content":         fieldContent,
	"send_timestamp":  fieldTimestamp,
	"send_time":       fieldTimestamp,
	"timestamp":       fieldTimestamp,
	"business_group":  fieldBusinessGroup,
	"group_name":      fieldBusinessGroup,
	"feedback_label":  fieldFeedbackLabel,
	"label":           fieldFeedbackLabel,
	"user_name":       fieldUserName,
	"customer_name":   fieldUserName,
	"agent_name":      fieldAgentName,
	"servicer_name":   fieldAgentName,
}

// columnField maps a header to a field. Case, surrounding space, a UTF-8
// BOM and hyphen/space separators are ignored.
func columnField(header string) field {
	h := strings.TrimPrefix(header, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("-", "_", " ", "_").Replace(h)
	return columnAliases[h]
}

// setField stores raw into the record field f. A nil raw leaves content
// null; other fields treat nil as empty.
func setField(r *dialog.RawRecord, f field, raw any) {
	if f == fieldContent {
		if raw == nil {
			r.Content = nil
			return
		}
		s := cast.ToString(raw)
		r.Content = &s
		return
	}

	s := strings.TrimSpace(cast.ToString(raw))
	switch f {
	case fieldConversationID:
		r.ConversationID = s
	case fieldSequenceNo:
		r.SequenceNo = s
	case fieldSenderRole:
		r.SenderRole = s
	case fieldTimestamp:
		r.Timestamp = s
	case fieldBusinessGroup:
		r.BusinessGroup = s
	case fieldFeedbackLabel:
		r.FeedbackLabel = s
	case fieldUserName:
		r.UserName = s
	case fieldAgentName:
		r.AgentName = s
	}
}
