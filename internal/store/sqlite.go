// ABOUTME: SQLite implementation of Collection using modernc.org/sqlite and sqlx
// ABOUTME: Merge-upsert runs in one transaction with ON CONFLICT and INSERT OR IGNORE

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteCollection implements Collection on an embedded SQLite database.
// Conversations, participants and messages live in separate tables; seq
// columns preserve insertion order.
type SQLiteCollection struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLiteCollection opens the database at path and creates the schema if
// it doesn't exist. Parent directories are created if needed.
func NewSQLiteCollection(path string, logger *slog.Logger) (*SQLiteCollection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqlite")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	c := &SQLiteCollection{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite collection initialized", "path", path)
	return c, nil
}

// createSchema creates the database tables if they don't exist
func (c *SQLiteCollection) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			channel_id  TEXT PRIMARY KEY,
			last_update TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_last_update
			ON conversations(last_update DESC);

		CREATE TABLE IF NOT EXISTS conversation_users (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			UNIQUE (channel_id, user_id),
			FOREIGN KEY (channel_id) REFERENCES conversations(channel_id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_users_user
			ON conversation_users(user_id);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			sender_id  TEXT NOT NULL,
			date       TEXT NOT NULL,
			message    TEXT NOT NULL,
			UNIQUE (channel_id, sender_id, date, message),
			FOREIGN KEY (channel_id) REFERENCES conversations(channel_id)
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Name implements Collection.
func (c *SQLiteCollection) Name() string { return "sqlite" }

// FindByParticipant implements Collection. All reads run in one transaction
// so each document is a consistent snapshot.
func (c *SQLiteCollection) FindByParticipant(ctx context.Context, participantID string) ([]*Document, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, connectionError("begin", err)
	}
	defer tx.Rollback()

	var docs []*Document
	err = tx.SelectContext(ctx, &docs, `
		SELECT c.channel_id, c.last_update
		FROM conversations c
		WHERE EXISTS (
			SELECT 1 FROM conversation_users u
			WHERE u.channel_id = c.channel_id AND u.user_id = ?
		)
		ORDER BY c.last_update DESC, c.channel_id ASC
	`, participantID)
	if err != nil {
		return nil, connectionError("find", err)
	}

	for _, d := range docs {
		d.Users = []Participant{}
		if err := tx.SelectContext(ctx, &d.Users, `
			SELECT user_id AS id, name, email
			FROM conversation_users
			WHERE channel_id = ?
			ORDER BY seq
		`, d.ChannelID); err != nil {
			return nil, connectionError("find users", err)
		}

		d.Messages = []StoredMessage{}
		if err := tx.SelectContext(ctx, &d.Messages, `
			SELECT sender_id, date, message
			FROM conversation_messages
			WHERE channel_id = ?
			ORDER BY seq
		`, d.ChannelID); err != nil {
			return nil, connectionError("find messages", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, connectionError("commit", err)
	}
	return docs, nil
}

// MergeUpsert implements Collection.
func (c *SQLiteCollection) MergeUpsert(ctx context.Context, delta *Document) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return connectionError("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (channel_id, last_update) VALUES (?, ?)
		ON CONFLICT(channel_id) DO UPDATE
			SET last_update = MAX(conversations.last_update, excluded.last_update)
	`, delta.ChannelID, delta.LastUpdate)
	if err != nil {
		return connectionError("upsert conversation", err)
	}

	for _, u := range delta.Users {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_users (channel_id, user_id, name, email)
			VALUES (?, ?, ?, ?)
		`, delta.ChannelID, u.ID, u.Name, u.Email)
		if err != nil {
			return connectionError("insert user", err)
		}
	}

	for _, m := range delta.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_messages (channel_id, sender_id, date, message)
			VALUES (?, ?, ?, ?)
		`, delta.ChannelID, m.SenderID, m.Date, m.Message)
		if err != nil {
			return connectionError("insert message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return connectionError("commit", err)
	}
	return nil
}

// ListUsers implements Collection: every participant ever stored, first
// record per id wins.
func (c *SQLiteCollection) ListUsers(ctx context.Context) ([]Participant, error) {
	users := []Participant{}
	err := c.db.SelectContext(ctx, &users, `
		SELECT user_id AS id, name, email
		FROM conversation_users
		WHERE seq IN (SELECT MIN(seq) FROM conversation_users GROUP BY user_id)
		ORDER BY seq
	`)
	if err != nil {
		return nil, connectionError("list users", err)
	}
	return users, nil
}

// Ping implements Collection.
func (c *SQLiteCollection) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return connectionError("ping", err)
	}
	return nil
}

// Close implements Collection.
func (c *SQLiteCollection) Close() error {
	return c.db.Close()
}
