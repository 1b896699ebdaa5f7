// Package docs implements create, read, update, delete and list operations
// as free functions over a store.Store handle.
//
// Every operation returns either a value and a nil error, or a nil value and
// an *Error whose Kind tells the caller why it failed. Failures are logged
// before they are returned. Revision conflicts are never retried.
package docs

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/stevemurr/docsvc/store"
)

// Operation names used in errors, logs and metrics.
const (
	OpCreate            = "create"
	OpFindByID          = "findById"
	OpFindByIDAndUpdate = "findByIdAndUpdate"
	OpFindByIDAndDelete = "findByIdAndDelete"
	OpGetAllDocuments   = "getAllDocuments"
)

var (
	errNoBody   = errors.New("document body is not defined")
	errNoID     = errors.New("id not specified")
	errNoHandle = errors.New("store handle is not set")
)

// Create writes fields as a new document under a freshly generated id and
// returns the store's acknowledgment. fields is not modified. Values are
// stored as JSON, so reading the document back yields float64 numbers and
// map[string]any or []any for nested values (see store.Normalize).
func Create(ctx context.Context, db store.Store, fields store.Document) (res *store.Response, err error) {
	defer func() { observe(OpCreate, err) }()

	if db == nil {
		return nil, fail(OpCreate, "", KindConfiguration, errNoHandle)
	}
	if fields == nil {
		return nil, fail(OpCreate, "", KindPrecondition, errNoBody)
	}

	id := GenerateID()
	doc := make(store.Document, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc[store.FieldID] = id

	res, err = db.Put(ctx, doc)
	if err != nil {
		return nil, fail(OpCreate, id, classify(err), err)
	}
	logrus.WithFields(logrus.Fields{"document_id": res.ID, "rev": res.Rev}).Debug("Document created")
	return res, nil
}

// FindByID returns the current revision of the document with the given id.
func FindByID(ctx context.Context, db store.Store, id string) (doc store.Document, err error) {
	defer func() { observe(OpFindByID, err) }()

	if db == nil {
		return nil, fail(OpFindByID, id, KindConfiguration, errNoHandle)
	}
	if id == "" {
		return nil, fail(OpFindByID, id, KindPrecondition, errNoID)
	}
	doc, err = db.Get(ctx, id)
	if err != nil {
		return nil, fail(OpFindByID, id, classify(err), err)
	}
	return doc, nil
}

// FindByIDAndUpdate shallow-merges patch over the current document and writes
// the result against the revision that was read. Fields of patch named _id or
// _rev are ignored.
func FindByIDAndUpdate(ctx context.Context, db store.Store, id string, patch store.Document) (res *store.Response, err error) {
	defer func() { observe(OpFindByIDAndUpdate, err) }()

	if db == nil {
		return nil, fail(OpFindByIDAndUpdate, id, KindConfiguration, errNoHandle)
	}
	if id == "" {
		return nil, fail(OpFindByIDAndUpdate, id, KindPrecondition, errNoID)
	}
	current, err := db.Get(ctx, id)
	if err != nil {
		return nil, fail(OpFindByIDAndUpdate, id, classify(err), err)
	}

	merged := make(store.Document, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	merged[store.FieldID] = current[store.FieldID]
	merged[store.FieldRev] = current[store.FieldRev]

	res, err = db.Put(ctx, merged)
	if err != nil {
		return nil, fail(OpFindByIDAndUpdate, id, classify(err), err)
	}
	logrus.WithFields(logrus.Fields{"document_id": id, "rev": res.Rev}).Debug("Document updated")
	return res, nil
}

// FindByIDAndDelete writes a tombstone over the current revision of the
// document with the given id.
func FindByIDAndDelete(ctx context.Context, db store.Store, id string) (res *store.Response, err error) {
	defer func() { observe(OpFindByIDAndDelete, err) }()

	if db == nil {
		return nil, fail(OpFindByIDAndDelete, id, KindConfiguration, errNoHandle)
	}
	if id == "" {
		return nil, fail(OpFindByIDAndDelete, id, KindPrecondition, errNoID)
	}
	current, err := db.Get(ctx, id)
	if err != nil {
		return nil, fail(OpFindByIDAndDelete, id, classify(err), err)
	}

	res, err = db.Put(ctx, store.Document{
		store.FieldID:      current[store.FieldID],
		store.FieldRev:     current[store.FieldRev],
		store.FieldDeleted: true,
	})
	if err != nil {
		return nil, fail(OpFindByIDAndDelete, id, classify(err), err)
	}
	logrus.WithFields(logrus.Fields{"document_id": id, "rev": res.Rev}).Debug("Document deleted")
	return res, nil
}

// GetAllDocuments returns every live document in id order. Each element is
// the stored document plus an "id" field copied from the listing row.
// An empty store yields an empty, non-nil slice.
func GetAllDocuments(ctx context.Context, db store.Store) (list []store.Document, err error) {
	defer func() { observe(OpGetAllDocuments, err) }()

	if db == nil {
		return nil, fail(OpGetAllDocuments, "", KindConfiguration, errNoHandle)
	}
	all, err := db.AllDocs(ctx, store.AllDocsOptions{IncludeDocs: true})
	if err != nil {
		return nil, fail(OpGetAllDocuments, "", classify(err), err)
	}

	list = make([]store.Document, 0, len(all.Rows))
	for _, row := range all.Rows {
		doc := make(store.Document, len(row.Doc)+1)
		for k, v := range row.Doc {
			doc[k] = v
		}
		doc["id"] = row.ID
		list = append(list, doc)
	}
	return list, nil
}
