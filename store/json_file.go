package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// jsonFileLocks holds one lock per absolute file path, so every handle on
// the same file in this process serializes its read-modify-write cycles.
var jsonFileLocks = xsync.NewMapOf[string, *sync.RWMutex]()

// JsonFileStore stores one database as a single JSON file on disk.
//
// Layout:
//
//	{
//	  "update_seq": 3,
//	  "docs": {
//	    "65f1c0...": {"rev": "2-9b1f...", "seq": 2, "body": {"desc": "Post 1"}},
//	    "65f1c1...": {"rev": "2-77ac...", "deleted": true, "seq": 3}
//	  }
//	}
type JsonFileStore struct {
	mu     *sync.RWMutex // shared by all handles on path
	path   string
	name   string
	closed atomic.Bool
}

type jsonFileContent struct {
	UpdateSeq uint64            `json:"update_seq"`
	Docs      map[string]record `json:"docs"`
}

// NewJsonFileStore opens or creates the database at location. A ".json"
// extension is appended unless location already has it.
func NewJsonFileStore(location string) (*JsonFileStore, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	path := location
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	mu, _ := jsonFileLocks.LoadOrCompute(abs, func() *sync.RWMutex { return &sync.RWMutex{} })
	s := &JsonFileStore{mu: mu, path: path, name: location}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.saveFile(&jsonFileContent{Docs: map[string]record{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *JsonFileStore) Path() string {
	return s.path
}

func (s *JsonFileStore) loadFile() (*jsonFileContent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &jsonFileContent{Docs: map[string]record{}}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var content jsonFileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if content.Docs == nil {
		content.Docs = map[string]record{}
	}
	return &content, nil
}

func (s *JsonFileStore) saveFile(content *jsonFileContent) error {
	b, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}

	// Write next to the target and rename, so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JsonFileStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *JsonFileStore) Put(ctx context.Context, doc Document) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, err := docID(doc)
	if err != nil {
		return nil, err
	}
	content, err := s.loadFile()
	if err != nil {
		return nil, err
	}

	var prev *record
	if r, ok := content.Docs[id]; ok {
		prev = &r
	}
	next, err := nextRecord(doc, prev)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", id, err)
	}
	content.UpdateSeq++
	next.Seq = content.UpdateSeq
	content.Docs[id] = next
	if err := s.saveFile(content); err != nil {
		return nil, err
	}
	return &Response{OK: true, ID: id, Rev: next.Rev}, nil
}

func (s *JsonFileStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	content, err := s.loadFile()
	if err != nil {
		return nil, err
	}
	r, ok := content.Docs[id]
	if !ok || r.Deleted {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return materialize(id, r)
}

func (s *JsonFileStore) AllDocs(ctx context.Context, opts AllDocsOptions) (*AllDocsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	content, err := s.loadFile()
	if err != nil {
		return nil, err
	}
	live := make(map[string]record, len(content.Docs))
	for id, r := range content.Docs {
		if !r.Deleted {
			live[id] = r
		}
	}
	return buildAllDocs(live, opts)
}

func (s *JsonFileStore) Info(ctx context.Context) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	content, err := s.loadFile()
	if err != nil {
		return nil, err
	}
	count := 0
	for _, r := range content.Docs {
		if !r.Deleted {
			count++
		}
	}
	return &Info{
		DBName:    s.name,
		DocCount:  count,
		UpdateSeq: content.UpdateSeq,
		Backend:   BackendJSON,
	}, nil
}

// Close waits for in-flight operations on the file, then marks this handle
// closed. Other handles on the same file stay usable.
func (s *JsonFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	return nil
}
