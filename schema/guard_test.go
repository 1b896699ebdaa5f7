package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/docsvc/schema"
	"github.com/stevemurr/docsvc/store"
)

var postSchema = map[string]any{
	"type":     "object",
	"required": []any{"desc"},
	"properties": map[string]any{
		"desc": map[string]any{"type": "string", "minLength": float64(1)},
	},
}

func TestGuardRejectsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore(t.Name())
	db := schema.Guard(base, postSchema)

	_, err := db.Put(ctx, store.Document{"_id": "a", "title": "no desc"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = base.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	res, err := db.Put(ctx, store.Document{"_id": "a", "desc": "ok"})
	require.NoError(t, err)

	got, err := db.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ok", got["desc"])

	// Tombstones carry no body and are never validated.
	_, err = db.Put(ctx, store.Document{"_id": "a", "_rev": res.Rev, "_deleted": true})
	assert.NoError(t, err)
}

func TestGuardNilSchema(t *testing.T) {
	base := store.NewMemoryStore(t.Name())
	assert.Same(t, base, schema.Guard(base, nil))
}

func TestGuardChecksStoredForm(t *testing.T) {
	ctx := context.Background()
	db := schema.Guard(store.NewMemoryStore(t.Name()), map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"meta":   map[string]any{"type": "object", "required": []any{"k"}},
			"labels": map[string]any{"type": "object"},
			"count":  map[string]any{"type": "integer"},
		},
	})

	res, err := db.Put(ctx, store.Document{
		"_id":    "typed",
		"tags":   []string{"a", "b"},
		"meta":   store.Document{"k": "v"},
		"labels": map[string]string{"env": "prod"},
		"count":  int64(3),
	})
	require.NoError(t, err)

	got, err := db.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	assert.Equal(t, map[string]any{"k": "v"}, got["meta"])

	_, err = db.Put(ctx, store.Document{"_id": "bad", "meta": store.Document{"other": 1}})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
	assert.ErrorContains(t, err, `$.meta: missing required field "k"`)

	_, err = db.Put(ctx, store.Document{"_id": "chan", "tags": make(chan int)})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
}
