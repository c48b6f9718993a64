package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        thread_id TEXT UNIQUE NOT NULL, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL DEFAULT '',
        total_input_tokens INTEGER NOT NULL DEFAULT 0,
        total_output_tokens INTEGER NOT NULL DEFAULT 0,
        total_tokens INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        thread_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool_call', 'tool_call_result')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_id, created_at);

    CREATE TABLE IF NOT EXISTS token_usage (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        thread_id TEXT,
        model TEXT,
        input_tokens INTEGER NOT NULL DEFAULT 0,
        output_tokens INTEGER NOT NULL DEFAULT 0,
        total_tokens INTEGER NOT NULL DEFAULT 0,
        request_type TEXT NOT NULL DEFAULT 'chat',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_token_usage_thread ON token_usage (thread_id, created_at);

    CREATE TABLE IF NOT EXISTS vehicles (
        samsara_id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        make TEXT,
        model TEXT,
        year TEXT,
        license_plate TEXT,
        vin TEXT,
        tag_ids_json TEXT,
        data_hash TEXT NOT NULL,
        synced_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_vehicles_name ON vehicles (name);

    CREATE TABLE IF NOT EXISTS tags (
        samsara_id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        parent_tag_id TEXT,
        vehicles_json TEXT,
        drivers_json TEXT,
        assets_json TEXT,
        vehicle_count INTEGER NOT NULL DEFAULT 0,
        driver_count INTEGER NOT NULL DEFAULT 0,
        asset_count INTEGER NOT NULL DEFAULT 0,
        data_hash TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_tags_parent ON tags (parent_tag_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(ctx context.Context, threadID, userID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (thread_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		threadID, userID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Conversation{ID: id, ThreadID: threadID, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

const conversationColumns = "id, thread_id, user_id, title, total_input_tokens, total_output_tokens, total_tokens, created_at, updated_at"

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.ThreadID, &c.UserID, &c.Title, &c.TotalInputTokens, &c.TotalOutputTokens, &c.TotalTokens, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation returns nil, nil when the thread does not exist for the user.
func (s *SQLiteStore) GetConversation(ctx context.Context, threadID, userID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE thread_id = ? AND user_id = ?", threadID, userID)
	c, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// TouchConversation refreshes the last activity timestamp.
func (s *SQLiteStore) TouchConversation(ctx context.Context, threadID, userID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE thread_id = ? AND user_id = ?", time.Now().UTC(), threadID, userID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %s: %w", threadID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AddConversationTokens(ctx context.Context, threadID string, input, output int) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE conversations
        SET total_input_tokens = total_input_tokens + ?,
            total_output_tokens = total_output_tokens + ?,
            total_tokens = total_tokens + ?
        WHERE thread_id = ?`, input, output, input+output, threadID)
	if err != nil {
		return fmt.Errorf("failed to add conversation tokens: %w", err)
	}
	return nil
}

// DeleteConversation removes a thread and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, threadID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE thread_id = ? AND user_id = ?", threadID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %s: %w", threadID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return tx.Commit()
}

// Message methods
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesByThreadID(ctx context.Context, threadID string, limit int, offset int) ([]Message, error) {
	query := "SELECT id, thread_id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, threadID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetLastNMessagesByThreadID returns the most recent n messages, oldest first.
func (s *SQLiteStore) GetLastNMessagesByThreadID(ctx context.Context, threadID string, n int) ([]Message, error) {
	query := `
        SELECT id, thread_id, role, content, created_at
        FROM messages
        WHERE thread_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Token usage
func (s *SQLiteStore) RecordTokenUsage(ctx context.Context, u *TokenUsage) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.RequestType == "" {
		u.RequestType = "chat"
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO token_usage (user_id, thread_id, model, input_tokens, output_tokens, total_tokens, request_type, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UserID, u.ThreadID, u.Model, u.InputTokens, u.OutputTokens, u.TotalTokens, u.RequestType, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token usage: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListTokenUsage(ctx context.Context, threadID string) ([]TokenUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, thread_id, model, input_tokens, output_tokens, total_tokens, request_type, created_at
        FROM token_usage WHERE thread_id = ? ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage: %w", err)
	}
	defer rows.Close()

	var usage []TokenUsage
	for rows.Next() {
		var u TokenUsage
		if err := rows.Scan(&u.ID, &u.UserID, &u.ThreadID, &u.Model, &u.InputTokens, &u.OutputTokens, &u.TotalTokens, &u.RequestType, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token usage row: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
