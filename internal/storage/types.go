package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed      = errors.New("storage closed")
	ErrUnknownType = errors.New("unknown storage driver")
)

// Config selects and configures a driver.
//
// Driver values: "memory" (also "" and "none"), "file", "sqlite", "postgres".
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one key/value pair for batch writes.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a single-writer document store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutAll writes all entries in one atomic step where the driver allows it.
	PutAll(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, key string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records a user action that changed persisted state.
type AuditEntry struct {
	At        time.Time `json:"at"`
	ActorID   int64     `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
}
