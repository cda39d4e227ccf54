package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/convoscope/internal/knowledge"
)

// ReplaceKnowledge swaps the stored knowledge base for doc in a single
// transaction. Readers never observe a partially written base.
func (s *SQLiteStore) ReplaceKnowledge(ctx context.Context, doc knowledge.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"faq_entries", "faq_templates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i, f := range doc.FAQs {
		variants, _ := marshalOptional(f.Question.Variants, len(f.Question.Variants) > 0)
		keywords, _ := marshalOptional(f.Answer.Keywords, len(f.Answer.Keywords) > 0)
		related, _ := marshalOptional(f.Related, len(f.Related) > 0)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO faq_entries (id, position, category, question, variants, answer, keywords, related, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, i, f.Category, f.Question.Standard, variants, f.Answer.Standard, keywords, related, f.UpdatedAt,
		); err != nil {
			return fmt.Errorf("inserting faq %s: %w", f.ID, err)
		}
	}

	for i, t := range doc.Templates {
		variables, _ := marshalOptional(t.Variables, len(t.Variables) > 0)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO faq_templates (id, position, category, scenario, content, variables, usage_tips, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, i, t.Category, t.Scenario, t.Content, variables, t.UsageTips, t.UpdatedAt,
		); err != nil {
			return fmt.Errorf("inserting template %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing knowledge base: %w", err)
	}
	return nil
}

// LoadKnowledge returns the stored knowledge base in its original order.
func (s *SQLiteStore) LoadKnowledge(ctx context.Context) (knowledge.Document, error) {
	var doc knowledge.Document

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, question, variants, answer, keywords, related, updated_at
		 FROM faq_entries ORDER BY position`)
	if err != nil {
		return doc, fmt.Errorf("loading faqs: %w", err)
	}
	for rows.Next() {
		var (
			f                           knowledge.FAQEntry
			variants, keywords, related string
		)
		if err := rows.Scan(&f.ID, &f.Category, &f.Question.Standard, &variants,
			&f.Answer.Standard, &keywords, &related, &f.UpdatedAt); err != nil {
			rows.Close()
			return doc, fmt.Errorf("scanning faq: %w", err)
		}
		if err := unmarshalList(variants, &f.Question.Variants); err != nil {
			rows.Close()
			return doc, fmt.Errorf("decoding variants of %s: %w", f.ID, err)
		}
		if err := unmarshalList(keywords, &f.Answer.Keywords); err != nil {
			rows.Close()
			return doc, fmt.Errorf("decoding keywords of %s: %w", f.ID, err)
		}
		if err := unmarshalList(related, &f.Related); err != nil {
			rows.Close()
			return doc, fmt.Errorf("decoding related of %s: %w", f.ID, err)
		}
		doc.FAQs = append(doc.FAQs, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return doc, err
	}
	rows.Close()

	trows, err := s.db.QueryContext(ctx,
		`SELECT id, category, scenario, content, variables, usage_tips, updated_at
		 FROM faq_templates ORDER BY position`)
	if err != nil {
		return doc, fmt.Errorf("loading templates: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var (
			t         knowledge.Template
			variables string
		)
		if err := trows.Scan(&t.ID, &t.Category, &t.Scenario, &t.Content, &variables, &t.UsageTips, &t.UpdatedAt); err != nil {
			return doc, fmt.Errorf("scanning template: %w", err)
		}
		if err := unmarshalList(variables, &t.Variables); err != nil {
			return doc, fmt.Errorf("decoding variables of %s: %w", t.ID, err)
		}
		doc.Templates = append(doc.Templates, t)
	}
	return doc, trows.Err()
}

func unmarshalList(raw string, dest *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
