package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is recorded in meta on first open.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	if err := s.migrateLookupIndexes(); err != nil {
		return fmt.Errorf("migrating lookup indexes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL DEFAULT '',
			strategy    TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT,
			stats_json  TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			conversation_id TEXT NOT NULL,
			business_group  TEXT NOT NULL DEFAULT '',
			feedback_label  TEXT NOT NULL DEFAULT '',
			user_name       TEXT NOT NULL DEFAULT '',
			agent_name      TEXT NOT NULL DEFAULT '',
			start_time      TEXT NOT NULL DEFAULT '',
			end_time        TEXT NOT NULL DEFAULT '',
			source_file     TEXT NOT NULL DEFAULT '',
			structured_info TEXT NOT NULL DEFAULT '',
			quality_score   REAL NOT NULL DEFAULT 0,
			accepted        INTEGER NOT NULL DEFAULT 0,
			reject_reason   TEXT NOT NULL DEFAULT '',
			sub_scores      TEXT NOT NULL DEFAULT '',
			UNIQUE(run_id, conversation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_pk INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq             INTEGER NOT NULL,
			role            TEXT NOT NULL,
			role_source     TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			clean_content   TEXT NOT NULL,
			sent_at         TEXT NOT NULL DEFAULT '',
			synthetic       INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS entities (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			message_pk  INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			type        TEXT NOT NULL,
			value       TEXT NOT NULL,
			message_seq INTEGER NOT NULL,
			inherited   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS intent_results (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			conversation_id TEXT NOT NULL,
			strategy        TEXT NOT NULL,
			scenario        TEXT NOT NULL,
			intent          TEXT NOT NULL,
			confidence      REAL NOT NULL,
			evidence        TEXT NOT NULL DEFAULT '',
			topics          TEXT NOT NULL DEFAULT '',
			user_messages   INTEGER NOT NULL DEFAULT 0,
			messages        INTEGER NOT NULL DEFAULT 0,
			UNIQUE(run_id, conversation_id, strategy)
		)`,

		`CREATE TABLE IF NOT EXISTS faq_entries (
			id         TEXT PRIMARY KEY,
			position   INTEGER NOT NULL,
			category   TEXT NOT NULL DEFAULT '',
			question   TEXT NOT NULL,
			variants   TEXT NOT NULL DEFAULT '',
			answer     TEXT NOT NULL DEFAULT '',
			keywords   TEXT NOT NULL DEFAULT '',
			related    TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS faq_templates (
			id         TEXT PRIMARY KEY,
			position   INTEGER NOT NULL,
			category   TEXT NOT NULL DEFAULT '',
			scenario   TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			variables  TEXT NOT NULL DEFAULT '',
			usage_tips TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateLookupIndexes adds the indexes used by conversation lookup and
// intent listing.
func (s *SQLiteStore) migrateLookupIndexes() error {
	done, err := s.isMetaFlagEnabled("lookup_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_cid ON conversations(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_pk, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_message ON entities(message_pk)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_scenario ON intent_results(scenario, intent)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating lookup index: %w", err)
		}
	}

	if err := s.setMetaFlag("lookup_indexes_v1"); err != nil {
		return fmt.Errorf("setting lookup_indexes_v1 flag: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
