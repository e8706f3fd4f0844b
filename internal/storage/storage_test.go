package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"matchbot/pkg/logx"
)

type reopenFunc func(t *testing.T) Store

func exerciseStore(t *testing.T, open reopenFunc, durable bool) {
	t.Helper()
	ctx := context.Background()

	s := open(t)
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "a", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "a", []byte(`{"n":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.PutAll(ctx, Entry{Key: "b", Value: []byte("B")}, Entry{Key: "c", Value: []byte("C")}); err != nil {
		t.Fatalf("put all: %v", err)
	}
	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.AppendAudit(ctx, AuditEntry{Action: "subscribe", Recipient: "1"}); err != nil {
		t.Fatalf("audit: %v", err)
	}

	check := func(s Store) {
		if v, ok, _ := s.Get(ctx, "a"); !ok || string(v) != `{"n":2}` {
			t.Fatalf("a = %q ok=%v", v, ok)
		}
		if v, ok, _ := s.Get(ctx, "b"); !ok || string(v) != "B" {
			t.Fatalf("b = %q ok=%v", v, ok)
		}
		if _, ok, _ := s.Get(ctx, "c"); ok {
			t.Fatalf("c should be deleted")
		}
	}
	check(s)

	if !durable {
		return
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2 := open(t)
	defer s2.Close()
	check(s2)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, func(*testing.T) Store { return NewMemory() }, false)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	exerciseStore(t, func(t *testing.T) Store {
		s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}, true)
}

func TestFileStoreReplaysJournalWithoutClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state")

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	// simulate a torn write after the last complete record
	f, err := os.OpenFile(path+".journal.jsonl", os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, _ = f.WriteString(`{"op":"put","key":"k","val`)
	_ = f.Close()

	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, ok, _ := s2.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("k = %q ok=%v", v, ok)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "matchbot.db")
	exerciseStore(t, func(t *testing.T) Store {
		s, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}, true)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MATCHBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MATCHBOT_TEST_POSTGRES_DSN not set")
	}
	exerciseStore(t, func(t *testing.T) Store {
		s, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}, true)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	type doc struct{ N int }
	if err := PutJSON(ctx, s, "d", doc{N: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got doc
	ok, err := GetJSON(ctx, s, "d", &got)
	if err != nil || !ok || got.N != 7 {
		t.Fatalf("got %+v ok=%v err=%v", got, ok, err)
	}
	ok, err = GetJSON(ctx, s, "nope", &got)
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}
