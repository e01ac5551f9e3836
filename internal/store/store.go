// Package store archives parsed conversations in a local SQLite
// database so repeated parses of the same conversation are queryable
// offline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"convograb/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists conversations and their messages.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		source_type     TEXT NOT NULL,
		provider        TEXT NOT NULL,
		share_url       TEXT,
		adapter_id      TEXT NOT NULL,
		adapter_version TEXT NOT NULL,
		parsed_at       DATETIME NOT NULL,
		saved_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id                  TEXT PRIMARY KEY,
		conversation_id     TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role                TEXT NOT NULL,
		content_markdown    TEXT NOT NULL,
		msg_order           INTEGER NOT NULL,
		contains_code_block INTEGER DEFAULT 0,
		contains_image      INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, msg_order);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveConversation upserts a conversation and replaces its messages.
// A re-parse of the same conversation overwrites the previous archive.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, source_type, provider, share_url, adapter_id, adapter_version, parsed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source_type=excluded.source_type,
		   provider=excluded.provider,
		   share_url=excluded.share_url,
		   adapter_id=excluded.adapter_id,
		   adapter_version=excluded.adapter_version,
		   parsed_at=excluded.parsed_at,
		   saved_at=CURRENT_TIMESTAMP`,
		conv.ID, conv.SourceType, conv.SourceMeta.Provider, conv.SourceMeta.ShareURL,
		conv.SourceMeta.AdapterID, conv.SourceMeta.AdapterVersion, conv.SourceMeta.ParsedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return err
	}

	for _, m := range conv.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content_markdown, msg_order, contains_code_block, contains_image)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, conv.ID, m.Role, m.ContentMarkdown, m.Order,
			m.ContentMeta.ContainsCodeBlock, m.ContentMeta.ContainsImage,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetConversation loads an archived conversation with its messages in
// order. Returns nil when the id is unknown.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var shareURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_type, provider, share_url, adapter_id, adapter_version, parsed_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.SourceType, &conv.SourceMeta.Provider, &shareURL,
		&conv.SourceMeta.AdapterID, &conv.SourceMeta.AdapterVersion, &conv.SourceMeta.ParsedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.SourceMeta.ShareURL = shareURL.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content_markdown, msg_order, contains_code_block, contains_image
		 FROM messages WHERE conversation_id = ? ORDER BY msg_order ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.ContentMarkdown, &m.Order,
			&m.ContentMeta.ContainsCodeBlock, &m.ContentMeta.ContainsImage); err != nil {
			return nil, err
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ConversationSummary is one row of the history listing.
type ConversationSummary struct {
	ID           string
	Provider     domain.Provider
	SourceType   domain.SourceType
	MessageCount int
	ParsedAt     time.Time
}

// ListConversations returns the most recently parsed conversations.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.provider, c.source_type, c.parsed_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c ORDER BY c.parsed_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Provider, &cs.SourceType, &cs.ParsedAt, &cs.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Prune deletes conversations parsed before the retention window.
func (s *SQLiteStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE parsed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		// CASCADE needs foreign keys on; clean up orphans explicitly.
		_, _ = s.db.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id NOT IN (SELECT id FROM conversations)`)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
