package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON decodes the document at key into v. It reports false when the key
// is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// JSONEntry encodes v as a batch entry.
func JSONEntry(key string, v any) (Entry, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Entry{Key: key, Value: b}, nil
}

func PutJSON(ctx context.Context, s Store, key string, v any) error {
	e, err := JSONEntry(key, v)
	if err != nil {
		return err
	}
	return s.Put(ctx, e.Key, e.Value)
}
