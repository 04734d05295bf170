package storage

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

// PostgresStore implements MessageStore on a PostgreSQL connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
	// serializes Append so BIGSERIAL values commit in the order they were drawn
	writeMu sync.Mutex
}

var _ MessageStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("open", err)
	}
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

// Migrate creates the messages table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		ts BIGINT NOT NULL,
		username TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL
	)`)
	return wrap("migrate", err)
}

// Append inserts a message and returns it with its assigned id and timestamp.
func (s *PostgresStore) Append(ctx context.Context, username string, kind Kind, content string) (Message, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	msg := Message{
		Timestamp: s.opts.now().Unix(),
		Username:  username,
		Kind:      kind,
		Content:   content,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (ts, username, kind, content) VALUES ($1, $2, $3, $4) RETURNING id`,
		msg.Timestamp, msg.Username, string(msg.Kind), msg.Content,
	).Scan(&msg.ID)
	if err != nil {
		return Message{}, wrap("append", err)
	}
	return msg, nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, username, kind, content FROM messages ORDER BY id DESC LIMIT $1`,
		ClampLimit(limit))
	if err != nil {
		return nil, wrap("recent", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		var kind string
		if err := row.Scan(&msg.ID, &msg.Timestamp, &msg.Username, &kind, &msg.Content); err != nil {
			return Message{}, err
		}
		msg.Kind = Kind(kind)
		return msg, nil
	})
	if err != nil {
		return nil, wrap("recent", err)
	}
	return lo.Reverse(messages), nil
}

// Clear deletes every message and restarts the id sequence.
func (s *PostgresStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.pool.Exec(ctx, `TRUNCATE messages RESTART IDENTITY`)
	return wrap("clear", err)
}
