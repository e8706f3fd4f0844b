package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"matchbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialect hides placeholder and timestamp differences between drivers.
type dialect struct {
	name      string
	migration string
	bind      func(n int) string
	stamp     func(t time.Time) any
}

var sqliteDialect = dialect{
	name:      "sqlite",
	migration: "migrations/sqlite.sql",
	bind:      func(int) string { return "?" },
	stamp:     func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

var postgresDialect = dialect{
	name:      "postgres",
	migration: "migrations/postgres.sql",
	bind:      func(n int) string { return fmt.Sprintf("$%d", n) },
	stamp:     func(t time.Time) any { return t.UTC() },
}

// sqlStore implements Store on database/sql for both SQL drivers.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger

	qGet, qPut, qDelete, qAudit string
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	b := d.bind
	return &sqlStore{
		db:      db,
		d:       d,
		log:     log.With(logx.String("driver", d.name)),
		qGet:    "SELECT value FROM documents WHERE key = " + b(1),
		qPut:    fmt.Sprintf("INSERT INTO documents(key, value, updated_at) VALUES(%s, %s, %s) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at", b(1), b(2), b(3)),
		qDelete: "DELETE FROM documents WHERE key = " + b(1),
		qAudit: fmt.Sprintf("INSERT INTO audit(at, actor_id, actor_name, recipient, action, detail, err) VALUES(%s, %s, %s, %s, %s, %s, %s)",
			b(1), b(2), b(3), b(4), b(5), b(6), b(7)),
	}
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile(s.d.migration)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("%s migrate: %w", s.d.name, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, s.qGet, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *sqlStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.qPut, key, value, s.d.stamp(time.Now()))
	return err
}

func (s *sqlStore) PutAll(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := s.d.stamp(time.Now())
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, s.qPut, e.Key, e.Value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.qDelete, key)
	return err
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.qAudit,
		s.d.stamp(e.At), e.ActorID, nullStr(e.ActorName), nullStr(e.Recipient),
		e.Action, nullStr(e.Detail), nullStr(e.Error),
	)
	return err
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
