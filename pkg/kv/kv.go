// Package kv provides the named-slot key-value storage used for durable
// client state such as the favorites list.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a slot has never been written.
var ErrNotFound = errors.New("kv: slot not found")

// Store reads and writes opaque values by slot name. Put must be durable
// once it returns nil.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// GetStrings reads a slot holding a JSON array of strings. A missing slot
// yields an empty list.
func GetStrings(ctx context.Context, s Store, key string) ([]string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("kv: decode slot %q: %w", key, err)
	}
	return values, nil
}

// PutStrings writes values to a slot as a JSON array of strings.
func PutStrings(ctx context.Context, s Store, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("kv: encode slot %q: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
