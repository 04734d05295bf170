package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultRecentLimit is the history size used when none is configured.
	DefaultRecentLimit = 100
	// MaxRecentLimit caps how many messages a single history query returns.
	MaxRecentLimit = 300
)

// Kind is the declared type of a chat message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Message is a persisted chat line. It is never mutated after Append returns it.
type Message struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	Username  string `json:"username"`
	Kind      Kind   `json:"kind"`
	Content   string `json:"content"`
}

// MessageStore is the append-only message log the chat core depends on.
// Both Store (SQLite) and PostgresStore implement it.
type MessageStore interface {
	Append(ctx context.Context, username string, kind Kind, content string) (Message, error)
	Recent(ctx context.Context, limit int) ([]Message, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// StorageError reports a failure of the underlying durable medium.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err (or anything it wraps) is a *StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ClampLimit bounds a requested history size to [1, MaxRecentLimit].
func ClampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	}
	return limit
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp new messages.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
