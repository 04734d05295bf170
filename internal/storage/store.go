package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Store wraps the SQLite handle and implements MessageStore.
type Store struct {
	db   *sql.DB
	opts options
}

var _ MessageStore = (*Store)(nil)

// NewStore opens the SQLite database at the provided path. Call Close when done.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "chatroom.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, wrap("open", err)
	}
	// One connection means one writer: ids are handed out in commit order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, wrap("open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, wrap("open", err)
	}
	return &Store{db: db, opts: buildOptions(opts)}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		username TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL
	);`)
	return wrap("migrate", err)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

// Append stores a message and returns it with its assigned id and timestamp.
func (s *Store) Append(ctx context.Context, username string, kind Kind, content string) (msg Message, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, wrap("append", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	msg = Message{
		Timestamp: s.opts.now().Unix(),
		Username:  username,
		Kind:      kind,
		Content:   content,
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (ts, username, kind, content) VALUES (?, ?, ?, ?)`,
		msg.Timestamp, msg.Username, string(msg.Kind), msg.Content)
	if err != nil {
		return Message{}, wrap("append", err)
	}
	if msg.ID, err = result.LastInsertId(); err != nil {
		return Message{}, wrap("append", err)
	}
	if err = tx.Commit(); err != nil {
		return Message{}, wrap("append", err)
	}
	return msg, nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, username, kind, content FROM messages ORDER BY id DESC LIMIT ?`,
		ClampLimit(limit))
	if err != nil {
		return nil, wrap("recent", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, ClampLimit(limit))
	for rows.Next() {
		var msg Message
		var kind string
		if err := rows.Scan(&msg.ID, &msg.Timestamp, &msg.Username, &kind, &msg.Content); err != nil {
			return nil, wrap("recent", err)
		}
		msg.Kind = Kind(kind)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent", err)
	}
	return lo.Reverse(messages), nil
}

// Clear deletes every message and resets the id sequence.
func (s *Store) Clear(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("clear", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return wrap("clear", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'messages'`); err != nil {
		return wrap("clear", err)
	}
	if err = tx.Commit(); err != nil {
		return wrap("clear", err)
	}
	return nil
}
