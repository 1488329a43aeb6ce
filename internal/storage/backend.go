// Package storage implements the persistent key/value backends behind the
// script store module.
// CRC: crc-StorageBackend.md
package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Backend stores JSON values by string key. Implementations are safe for
// concurrent use.
type Backend interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key string) (value json.RawMessage, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value json.RawMessage) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists the keys starting with prefix, in order.
	Keys(prefix string) ([]string, error)

	// Clear removes all data.
	Clear() error

	// Close closes the storage backend.
	Close() error
}

// Open creates the backend named by kind: "memory", "sqlite" (path is the
// database file) or "postgresql" (url is the connection string).
func Open(kind, path, url string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite store needs a path")
		}
		return NewSQLiteStorage(path)
	case "postgres", "postgresql":
		if url == "" {
			return nil, fmt.Errorf("postgresql store needs a url")
		}
		return NewPostgresStorage(url)
	}
	return nil, fmt.Errorf("unknown store type %q", kind)
}
