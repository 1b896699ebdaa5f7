package store

import "fmt"

const (
	BackendJSON   = "json"
	BackendSqlite = "sqlite"
	BackendMemory = "memory"
)

// Open creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - JSON file at <location>.json (default)
//	"sqlite" - SQLite database at <location>.db
//	"memory" - In-memory database named location (ephemeral, for testing)
func Open(backend, location string) (Store, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	switch backend {
	case BackendJSON, "":
		return NewJsonFileStore(location)
	case BackendSqlite:
		return NewSqliteStore(location)
	case BackendMemory:
		return NewMemoryStore(location), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
}

// ValidBackend reports whether Open accepts backend.
func ValidBackend(backend string) bool {
	switch backend {
	case BackendJSON, BackendSqlite, BackendMemory, "":
		return true
	}
	return false
}
