package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/convoscope/internal/intent"
)

// SaveIntentResults upserts results under runID, one row per
// conversation and strategy.
func (s *SQLiteStore) SaveIntentResults(ctx context.Context, runID string, results []intent.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO intent_results
			(run_id, conversation_id, strategy, scenario, intent, confidence, evidence, topics, user_messages, messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing intent insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		evidence, err := json.Marshal(r.Evidence)
		if err != nil {
			return fmt.Errorf("encoding evidence for %s: %w", r.ConversationID, err)
		}
		topics, err := marshalOptional(r.Topics, len(r.Topics) > 0)
		if err != nil {
			return fmt.Errorf("encoding topics for %s: %w", r.ConversationID, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, r.ConversationID, r.Strategy, r.Scenario, r.Intent,
			r.Confidence, string(evidence), topics, r.UserMessages, r.Messages); err != nil {
			return fmt.Errorf("inserting intent result %s: %w", r.ConversationID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing intent results: %w", err)
	}
	return nil
}

// ListIntentResults returns stored results matching q in insertion order.
func (s *SQLiteStore) ListIntentResults(ctx context.Context, q IntentQuery) ([]intent.Result, error) {
	query := `SELECT conversation_id, strategy, scenario, intent, confidence, evidence, topics, user_messages, messages
		FROM intent_results WHERE 1=1`
	var args []any
	filters := []struct {
		column string
		value  string
	}{
		{"run_id", q.RunID},
		{"strategy", q.Strategy},
		{"scenario", q.Scenario},
		{"intent", q.Intent},
	}
	for _, f := range filters {
		if f.value != "" {
			query += " AND " + f.column + " = ?"
			args = append(args, f.value)
		}
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing intent results: %w", err)
	}
	defer rows.Close()

	var out []intent.Result
	for rows.Next() {
		var (
			r        intent.Result
			evidence string
			topics   string
		)
		if err := rows.Scan(&r.ConversationID, &r.Strategy, &r.Scenario, &r.Intent, &r.Confidence,
			&evidence, &topics, &r.UserMessages, &r.Messages); err != nil {
			return nil, fmt.Errorf("scanning intent result: %w", err)
		}
		if evidence != "" {
			if err := json.Unmarshal([]byte(evidence), &r.Evidence); err != nil {
				return nil, fmt.Errorf("decoding evidence for %s: %w", r.ConversationID, err)
			}
		}
		if topics != "" {
			if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
				return nil, fmt.Errorf("decoding topics for %s: %w", r.ConversationID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
