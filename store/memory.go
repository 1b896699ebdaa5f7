package store

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// memoryDatabases holds every in-memory database of the process by name, so
// handles opened on the same name share their documents.
var memoryDatabases = xsync.NewMapOf[string, *memoryDB]()

type memoryDB struct {
	docs *xsync.MapOf[string, record]
	seq  atomic.Uint64
}

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	name   string
	db     *memoryDB
	closed atomic.Bool
}

func NewMemoryStore(name string) *MemoryStore {
	db, _ := memoryDatabases.LoadOrCompute(name, func() *memoryDB {
		return &memoryDB{docs: xsync.NewMapOf[string, record]()}
	})
	return &MemoryStore{name: name, db: db}
}

func (m *MemoryStore) check(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (m *MemoryStore) Put(ctx context.Context, doc Document) (*Response, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	id, err := docID(doc)
	if err != nil {
		return nil, err
	}

	var (
		written record
		putErr  error
	)
	// Compute runs under the bucket lock of id, so the revision check and the
	// write are atomic with respect to other writers of the same id.
	m.db.docs.Compute(id, func(old record, loaded bool) (record, bool) {
		var prev *record
		if loaded {
			prev = &old
		}
		next, err := nextRecord(doc, prev)
		if err != nil {
			putErr = err
			return old, !loaded
		}
		next.Seq = m.db.seq.Add(1)
		written = next
		return next, false
	})
	if putErr != nil {
		return nil, fmt.Errorf("put %s: %w", id, putErr)
	}
	return &Response{OK: true, ID: id, Rev: written.Rev}, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Document, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	r, ok := m.db.docs.Load(id)
	if !ok || r.Deleted {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return materialize(id, r)
}

func (m *MemoryStore) AllDocs(ctx context.Context, opts AllDocsOptions) (*AllDocsResponse, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	live := make(map[string]record)
	m.db.docs.Range(func(id string, r record) bool {
		if !r.Deleted {
			live[id] = r
		}
		return true
	})
	return buildAllDocs(live, opts)
}

func (m *MemoryStore) Info(ctx context.Context) (*Info, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	count := 0
	m.db.docs.Range(func(_ string, r record) bool {
		if !r.Deleted {
			count++
		}
		return true
	})
	return &Info{
		DBName:    m.name,
		DocCount:  count,
		UpdateSeq: m.db.seq.Load(),
		Backend:   BackendMemory,
	}, nil
}

// Close releases the handle. The named database stays available to other
// handles for the lifetime of the process.
func (m *MemoryStore) Close() error {
	m.closed.Store(true)
	return nil
}

// buildAllDocs turns a set of live records into an id-ordered listing.
func buildAllDocs(live map[string]record, opts AllDocsOptions) (*AllDocsResponse, error) {
	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := &AllDocsResponse{TotalRows: len(ids), Rows: make([]Row, 0, len(ids))}
	for _, id := range ids {
		r := live[id]
		row := Row{ID: id, Key: id, Value: RowValue{Rev: r.Rev}}
		if opts.IncludeDocs {
			doc, err := materialize(id, r)
			if err != nil {
				return nil, err
			}
			row.Doc = doc
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
