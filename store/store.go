// Package store defines the embedded document store contract and its backends.
package store

import (
	"context"
	"errors"
)

// Document is a schema-less record. The store owns the "_id", "_rev" and
// "_deleted" fields; everything else belongs to the caller.
type Document map[string]any

const (
	FieldID      = "_id"
	FieldRev     = "_rev"
	FieldDeleted = "_deleted"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrConflict        = errors.New("document update conflict")
	ErrMissingID       = errors.New("document _id is required")
	ErrInvalidRev      = errors.New("document _rev is invalid")
	ErrInvalidDocument = errors.New("document is invalid")
	ErrClosed          = errors.New("store is closed")
	ErrEmptyLocation   = errors.New("store location not specified")
)

// Response acknowledges a successful write.
type Response struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// AllDocsOptions controls an AllDocs listing.
type AllDocsOptions struct {
	// IncludeDocs fills Row.Doc with the full document.
	IncludeDocs bool
}

// RowValue carries the current revision of a listed document.
type RowValue struct {
	Rev string `json:"rev"`
}

// Row is one entry of an AllDocs listing.
type Row struct {
	ID    string   `json:"id"`
	Key   string   `json:"key"`
	Value RowValue `json:"value"`
	Doc   Document `json:"doc,omitempty"`
}

// AllDocsResponse lists every live document in ascending id order.
type AllDocsResponse struct {
	TotalRows int   `json:"total_rows"`
	Offset    int   `json:"offset"`
	Rows      []Row `json:"rows"`
}

// Info describes the state of an open store.
type Info struct {
	DBName    string `json:"db_name"`
	DocCount  int    `json:"doc_count"`
	UpdateSeq uint64 `json:"update_seq"`
	Backend   string `json:"backend"`
}

// Store is the interface that all backing stores must implement.
// Implementations are safe for concurrent use.
type Store interface {
	// Put writes a document. The document must carry "_id". Updating an
	// existing document requires its current "_rev", otherwise ErrConflict
	// is returned. A document with "_deleted": true is written as a tombstone.
	// The body is stored in its Normalize form, so Get returns float64 for
	// numbers and map[string]any or []any for nested values whatever Go types
	// were written. A body that cannot be encoded as JSON is ErrInvalidDocument.
	Put(ctx context.Context, doc Document) (*Response, error)

	// Get returns the current revision of a live document, or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// AllDocs lists every live document ordered by id.
	AllDocs(ctx context.Context, opts AllDocsOptions) (*AllDocsResponse, error)

	// Info reports the store status. An error means the handle is unusable.
	Info(ctx context.Context) (*Info, error)

	// Close releases the handle.
	Close() error
}
