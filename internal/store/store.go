// Package store provides the SQLite storage layer for convoscope.
//
// One database file holds every pipeline run:
// - runs with their configuration and summary statistics
// - assembled conversations, messages and extracted entities
// - intent results per strategy
// - the published FAQ knowledge base and reply templates
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/knowledge"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.convoscope/convoscope.db"

// DefaultBatchSize is the number of conversations written per transaction.
const DefaultBatchSize = 500

// Run is one pipeline execution.
type Run struct {
	ID         string
	Source     string
	Strategy   string
	StartedAt  time.Time
	FinishedAt *time.Time
	// StatsJSON is the serialized run summary, written when the run finishes.
	StatsJSON string
}

// ConversationSummary is a row of ListConversations.
type ConversationSummary struct {
	RunID          string
	ConversationID string
	BusinessGroup  string
	Messages       int
	QualityScore   float64
	Accepted       bool
	RejectReason   string
}

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Limit        int
	Offset       int
	RunID        string
	AcceptedOnly bool
}

// IntentQuery filters ListIntentResults.
type IntentQuery struct {
	RunID    string
	Strategy string
	Scenario string
	Intent   string
	Limit    int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	RunCount          int64
	ConversationCount int64
	AcceptedCount     int64
	MessageCount      int64
	EntityCount       int64
	IntentCount       int64
	FAQCount          int64
	TemplateCount     int64
	DBSizeBytes       int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath    string
	BatchSize int
}

// Store defines the storage interface.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, r *Run) (string, error)
	FinishRun(ctx context.Context, id string, statsJSON string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Conversations
	SaveConversations(ctx context.Context, runID string, convs []*dialog.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*dialog.Conversation, error)
	ListConversations(ctx context.Context, opts ListOpts) ([]*ConversationSummary, error)

	// Intents
	SaveIntentResults(ctx context.Context, runID string, results []intent.Result) error
	ListIntentResults(ctx context.Context, q IntentQuery) ([]intent.Result, error)

	// Knowledge base
	ReplaceKnowledge(ctx context.Context, doc knowledge.Document) error
	LoadKnowledge(ctx context.Context) (knowledge.Document, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database, and SQLite
	// allows one writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		dbPath:    cfg.DBPath,
		batchSize: cfg.BatchSize,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns row counts and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM runs", &stats.RunCount},
		{"SELECT COUNT(*) FROM conversations", &stats.ConversationCount},
		{"SELECT COUNT(*) FROM conversations WHERE accepted = 1", &stats.AcceptedCount},
		{"SELECT COUNT(*) FROM messages", &stats.MessageCount},
		{"SELECT COUNT(*) FROM entities", &stats.EntityCount},
		{"SELECT COUNT(*) FROM intent_results", &stats.IntentCount},
		{"SELECT COUNT(*) FROM faq_entries", &stats.FAQCount},
		{"SELECT COUNT(*) FROM faq_templates", &stats.TemplateCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
