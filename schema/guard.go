package schema

import (
	"context"
	"fmt"

	"github.com/stevemurr/docsvc/store"
)

// guardedStore rejects writes whose body does not match a schema.
type guardedStore struct {
	store.Store
	schema map[string]any
}

// Guard returns a Store that validates every non-tombstone document against
// schema before passing it to db. Documents are checked in their
// store.Normalize form, so any Go value that encodes as a JSON object or
// array matches "object" or "array". Rejected writes return an error wrapping
// store.ErrInvalidDocument and the *ValidationError. Reads pass through.
// A nil schema returns db unchanged.
func Guard(db store.Store, schema map[string]any) store.Store {
	if schema == nil {
		return db
	}
	return &guardedStore{Store: db, schema: schema}
}

func (g *guardedStore) Put(ctx context.Context, doc store.Document) (*store.Response, error) {
	if deleted, _ := doc[store.FieldDeleted].(bool); !deleted {
		// Validate the values the store will keep, not the caller's Go types.
		plain, err := store.Normalize(doc)
		if err != nil {
			return nil, err
		}
		if err := Validate(g.schema, plain); err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidDocument, err)
		}
	}
	return g.Store.Put(ctx, doc)
}
