package detector

import (
	"context"
	"fmt"

	"matchbot/internal/match"
	"matchbot/internal/storage"
)

const (
	KeyMatch = "state/match"
	KeyScore = "state/score"
)

// Store persists detector state as two documents.
type Store struct {
	db       storage.Store
	baseline State
}

func NewStore(db storage.Store, baseline State) *Store {
	return &Store{db: db, baseline: baseline}
}

// Load returns the persisted state, filling absent parts from the baseline.
func (s *Store) Load(ctx context.Context) (State, error) {
	st := s.baseline
	var m match.Snapshot
	ok, err := storage.GetJSON(ctx, s.db, KeyMatch, &m)
	if err != nil {
		return State{}, fmt.Errorf("load match state: %w", err)
	}
	if ok {
		st.Match = m
	}
	var sc match.Score
	ok, err = storage.GetJSON(ctx, s.db, KeyScore, &sc)
	if err != nil {
		return State{}, fmt.Errorf("load score state: %w", err)
	}
	if ok {
		st.Score = sc
	}
	return st, nil
}

// Save writes both documents in one batch.
func (s *Store) Save(ctx context.Context, st State) error {
	me, err := storage.JSONEntry(KeyMatch, st.Match)
	if err != nil {
		return err
	}
	se, err := storage.JSONEntry(KeyScore, st.Score)
	if err != nil {
		return err
	}
	if err := s.db.PutAll(ctx, me, se); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
