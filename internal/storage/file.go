package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"matchbot/pkg/logx"
)

const fileCompactEvery = 500

// fileStore keeps documents in memory and persists them as:
//   - <prefix>.snapshot.json  (compacted state)
//   - <prefix>.journal.jsonl  (one record per write, fsynced)
//   - <prefix>.audit.jsonl    (append-only)
//
// Values are stored as text; callers keep them UTF-8 (JSON documents).
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	auditFile    *os.File
	docs         map[string]string
	writes       int
}

type journalRecord struct {
	Op      string        `json:"op"` // put | del | batch
	Key     string        `json:"key,omitempty"`
	Value   string        `json:"value,omitempty"`
	Entries []journalPair `json:"entries,omitempty"`
}

type journalPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log.With(logx.String("driver", "file")),
		snapshotPath: prefix + ".snapshot.json",
		docs:         map[string]string{},
	}
	if err := loadSnapshot(s.snapshotPath, s.docs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	replayed, err := replayJournal(journalPath, s.docs)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if s.journal, err = os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600); err != nil {
		return nil, err
	}
	if s.auditFile, err = os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		_ = s.journal.Close()
		return nil, err
	}
	// fold the replayed journal into the snapshot; this also drops a torn tail
	if err := s.compactLocked(); err != nil {
		_ = s.journal.Close()
		_ = s.auditFile.Close()
		return nil, err
	}
	s.log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("docs", len(s.docs)), logx.Int("replayed", replayed))
	return s, nil
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, false, ErrClosed
	}
	v, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *fileStore) Put(ctx context.Context, key string, value []byte) error {
	return s.appendLocked(journalRecord{Op: "put", Key: key, Value: string(value)})
}

func (s *fileStore) PutAll(_ context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rec := journalRecord{Op: "batch", Entries: make([]journalPair, 0, len(entries))}
	for _, e := range entries {
		rec.Entries = append(rec.Entries, journalPair{Key: e.Key, Value: string(e.Value)})
	}
	return s.appendLocked(rec)
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	return s.appendLocked(journalRecord{Op: "del", Key: key})
}

// appendLocked journals rec, syncs it, and only then applies it in memory.
func (s *fileStore) appendLocked(rec journalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	applyRecord(s.docs, rec)

	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := errors.Join(cerr, s.journal.Close(), s.auditFile.Close())
	s.journal, s.auditFile = nil, nil
	return err
}

// compactLocked rewrites the snapshot through a temp file and truncates the
// journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.docs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func applyRecord(docs map[string]string, rec journalRecord) {
	switch rec.Op {
	case "put":
		docs[rec.Key] = rec.Value
	case "del":
		delete(docs, rec.Key)
	case "batch":
		for _, p := range rec.Entries {
			docs[p.Key] = p.Value
		}
	}
}

func loadSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(&out)
}

// replayJournal applies every decodable record. A torn final line from a
// crash mid-write is skipped.
func replayJournal(path string, out map[string]string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		applyRecord(out, rec)
		n++
	}
	return n, sc.Err()
}
