package persistence

import "errors"

// ErrKeyNotFound is returned by Get when the key has no value.
var ErrKeyNotFound = errors.New("persistence: key not found")

// Repository is a minimal key-value abstraction over the underlying storage
// engine. The strategy layer only ever needs put/get/list, so the same logic
// works against BadgerDB, an in-memory map, or a real database.
type Repository interface {
	// Put atomically stores value under key.
	Put(key string, value []byte) error

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// List returns all key/value pairs whose key starts with prefix.
	List(prefix string) (map[string][]byte, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
