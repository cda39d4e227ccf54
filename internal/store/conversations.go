package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hurttlocker/convoscope/internal/dialog"
)

// SaveConversations writes convs with their messages and entities under
// runID. Re-saving a conversation in the same run replaces it. Writes are
// committed in batches of the configured batch size.
func (s *SQLiteStore) SaveConversations(ctx context.Context, runID string, convs []*dialog.Conversation) error {
	for start := 0; start < len(convs); start += s.batchSize {
		end := min(start+s.batchSize, len(convs))
		if err := s.saveConversationBatch(ctx, runID, convs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) saveConversationBatch(ctx context.Context, runID string, convs []*dialog.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range convs {
		if c == nil {
			continue
		}
		if err := saveConversation(ctx, tx, runID, c); err != nil {
			return fmt.Errorf("saving conversation %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversations: %w", err)
	}
	return nil
}

func saveConversation(ctx context.Context, tx *sql.Tx, runID string, c *dialog.Conversation) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE run_id = ? AND conversation_id = ?`, runID, c.ID); err != nil {
		return fmt.Errorf("clearing previous rows: %w", err)
	}

	info, err := marshalOptional(c.StructuredInfo, len(c.StructuredInfo) > 0)
	if err != nil {
		return fmt.Errorf("encoding structured info: %w", err)
	}
	var (
		accepted  bool
		reason    string
		subScores string
	)
	if c.Quality != nil {
		accepted = c.Quality.Accepted
		reason = c.Quality.Reason
		if subScores, err = marshalOptional(c.Quality.SubScores, len(c.Quality.SubScores) > 0); err != nil {
			return fmt.Errorf("encoding sub scores: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (run_id, conversation_id, business_group, feedback_label,
			user_name, agent_name, start_time, end_time, source_file, structured_info,
			quality_score, accepted, reject_reason, sub_scores)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, c.ID, c.Metadata.BusinessGroup, c.Metadata.FeedbackLabel,
		c.Metadata.UserName, c.Metadata.AgentName,
		formatTime(c.Metadata.StartTime), formatTime(c.Metadata.EndTime), c.Metadata.SourceFile,
		info, c.QualityScore, boolInt(accepted), reason, subScores,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	convPK, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting conversation id: %w", err)
	}

	msgStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_pk, seq, role, role_source, content, clean_content, sent_at, synthetic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer msgStmt.Close()

	entStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (message_pk, type, value, message_seq, inherited) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing entity insert: %w", err)
	}
	defer entStmt.Close()

	for _, m := range c.Messages {
		res, err := msgStmt.ExecContext(ctx, convPK, m.SequenceNo, string(m.Role), string(m.RoleSource),
			m.Content, m.CleanContent, formatTime(m.Timestamp), boolInt(m.Synthetic))
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", m.SequenceNo, err)
		}
		msgPK, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting message id: %w", err)
		}
		for _, e := range m.Entities {
			if _, err := entStmt.ExecContext(ctx, msgPK, string(e.Type), e.Value, e.MessageSeq, boolInt(e.Inherited)); err != nil {
				return fmt.Errorf("inserting entity: %w", err)
			}
		}
	}
	return nil
}

// GetConversation returns the most recently saved copy of a conversation,
// or nil when no run stored it.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*dialog.Conversation, error) {
	var (
		pk              int64
		c               dialog.Conversation
		start, end      string
		info, subScores string
		accepted        int
		reason          string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, business_group, feedback_label, user_name, agent_name,
			start_time, end_time, source_file, structured_info, quality_score, accepted,
			reject_reason, sub_scores
		 FROM conversations WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, conversationID,
	).Scan(&pk, &c.ID, &c.Metadata.BusinessGroup, &c.Metadata.FeedbackLabel,
		&c.Metadata.UserName, &c.Metadata.AgentName, &start, &end, &c.Metadata.SourceFile,
		&info, &c.QualityScore, &accepted, &reason, &subScores)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", conversationID, err)
	}
	c.Metadata.StartTime = parseTime(start)
	c.Metadata.EndTime = parseTime(end)
	if info != "" {
		if err := json.Unmarshal([]byte(info), &c.StructuredInfo); err != nil {
			return nil, fmt.Errorf("decoding structured info: %w", err)
		}
	}
	if c.QualityScore > 0 || accepted == 1 || reason != "" || subScores != "" {
		v := &dialog.QualityVerdict{Accepted: accepted == 1, Score: c.QualityScore, Reason: reason}
		if subScores != "" {
			if err := json.Unmarshal([]byte(subScores), &v.SubScores); err != nil {
				return nil, fmt.Errorf("decoding sub scores: %w", err)
			}
		}
		c.Quality = v
	}

	msgs, err := s.loadMessages(ctx, pk)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return &c, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, convPK int64) ([]dialog.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, role, role_source, content, clean_content, sent_at, synthetic
		 FROM messages WHERE conversation_pk = ? ORDER BY id`, convPK)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var (
		msgs []dialog.Message
		pks  []int64
	)
	for rows.Next() {
		var (
			pk        int64
			m         dialog.Message
			role      string
			source    string
			sentAt    string
			synthetic int
		)
		if err := rows.Scan(&pk, &m.SequenceNo, &role, &source, &m.Content, &m.CleanContent, &sentAt, &synthetic); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = dialog.Role(role)
		m.RoleSource = dialog.RoleSource(source)
		m.Timestamp = parseTime(sentAt)
		m.Synthetic = synthetic == 1
		msgs = append(msgs, m)
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(pks) == 0 {
		return msgs, nil
	}
	index := make(map[int64]int, len(pks))
	for i, pk := range pks {
		index[pk] = i
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pks)), ",")
	args := make([]any, len(pks))
	for i, pk := range pks {
		args[i] = pk
	}
	erows, err := s.db.QueryContext(ctx,
		`SELECT message_pk, type, value, message_seq, inherited FROM entities
		 WHERE message_pk IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var (
			msgPK     int64
			e         dialog.Entity
			typ       string
			inherited int
		)
		if err := erows.Scan(&msgPK, &typ, &e.Value, &e.MessageSeq, &inherited); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Type = dialog.EntityType(typ)
		e.Inherited = inherited == 1
		i := index[msgPK]
		msgs[i].Entities = append(msgs[i].Entities, e)
	}
	return msgs, erows.Err()
}

// ListConversations returns conversation summaries, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, opts ListOpts) ([]*ConversationSummary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := `SELECT c.run_id, c.conversation_id, c.business_group, c.quality_score, c.accepted, c.reject_reason,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_pk = c.id AND m.synthetic = 0)
		FROM conversations c WHERE 1=1`
	var args []any
	if opts.RunID != "" {
		query += " AND c.run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.AcceptedOnly {
		query += " AND c.accepted = 1"
	}
	query += " ORDER BY c.id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*ConversationSummary
	for rows.Next() {
		var (
			cs       ConversationSummary
			accepted int
		)
		if err := rows.Scan(&cs.RunID, &cs.ConversationID, &cs.BusinessGroup, &cs.QualityScore,
			&accepted, &cs.RejectReason, &cs.Messages); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		cs.Accepted = accepted == 1
		out = append(out, &cs)
	}
	return out, rows.Err()
}

func marshalOptional(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
