package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// record is the persisted form of one document id, shared by every backend.
type record struct {
	Rev     string   `json:"rev"`
	Deleted bool     `json:"deleted,omitempty"`
	Seq     uint64   `json:"seq"`
	Body    Document `json:"body,omitempty"`
}

// docID returns the "_id" of doc.
func docID(doc Document) (string, error) {
	if doc == nil {
		return "", ErrMissingID
	}
	id, ok := doc[FieldID].(string)
	if !ok || id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

// docRev returns the "_rev" of doc and whether one was supplied.
func docRev(doc Document) (string, bool, error) {
	raw, ok := doc[FieldRev]
	if !ok || raw == nil {
		return "", false, nil
	}
	rev, ok := raw.(string)
	if !ok || rev == "" {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidRev, raw)
	}
	if _, err := revGeneration(rev); err != nil {
		return "", false, err
	}
	return rev, true, nil
}

// revGeneration parses the numeric prefix of a revision token.
func revGeneration(rev string) (int, error) {
	prefix, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRev, rev)
	}
	gen, err := strconv.Atoi(prefix)
	if err != nil || gen < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRev, rev)
	}
	return gen, nil
}

func newRev(generation int) string {
	return fmt.Sprintf("%d-%s", generation, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// nextRecord applies the revision rules to a write of doc over prev, which is
// nil when the id has never been written. The returned record has no Seq yet.
func nextRecord(doc Document, prev *record) (record, error) {
	rev, hasRev, err := docRev(doc)
	if err != nil {
		return record{}, err
	}

	generation := 0
	switch {
	case prev == nil:
		if hasRev {
			return record{}, ErrConflict
		}
	case prev.Deleted:
		// A tombstoned id may be re-created without a revision.
		if hasRev && rev != prev.Rev {
			return record{}, ErrConflict
		}
		generation, _ = revGeneration(prev.Rev)
	default:
		if !hasRev || rev != prev.Rev {
			return record{}, ErrConflict
		}
		generation, _ = revGeneration(prev.Rev)
	}

	next := record{Rev: newRev(generation + 1)}
	if deleted, _ := doc[FieldDeleted].(bool); deleted {
		next.Deleted = true
		return next, nil
	}

	body := make(Document, len(doc))
	for k, v := range doc {
		switch k {
		case FieldID, FieldRev, FieldDeleted:
			continue
		}
		body[k] = v
	}
	if next.Body, err = deepCopy(body); err != nil {
		return record{}, err
	}
	return next, nil
}

// materialize returns a caller-owned copy of a live record.
func materialize(id string, r record) (Document, error) {
	doc, err := deepCopy(r.Body)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	doc[FieldID] = id
	doc[FieldRev] = r.Rev
	return doc, nil
}

// Normalize returns a copy of doc holding only plain JSON values: nested
// objects become map[string]any, arrays []any and numbers float64. This is
// the form every backend stores and returns.
func Normalize(doc Document) (Document, error) {
	return deepCopy(doc)
}

// deepCopy returns a deep copy of a document by round-tripping through JSON.
func deepCopy(src Document) (Document, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var dst Document
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return dst, nil
}
