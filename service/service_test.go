package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/docsvc/config"
	"github.com/stevemurr/docsvc/docs"
	"github.com/stevemurr/docsvc/service"
	"github.com/stevemurr/docsvc/store"
)

// statusStore wraps a Store, overrides Info and records Close.
type statusStore struct {
	store.Store
	info   func(ctx context.Context) (*store.Info, error)
	closed bool
}

func (s *statusStore) Info(ctx context.Context) (*store.Info, error) {
	if s.info != nil {
		return s.info(ctx)
	}
	return s.Store.Info(ctx)
}

func (s *statusStore) Close() error {
	s.closed = true
	return s.Store.Close()
}

func newMemoryService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{service.WithBackend(store.BackendMemory)}, opts...)
	svc, err := service.New(context.Background(), t.Name(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewWithoutLocation(t *testing.T) {
	called := false
	opener := func(backend, location string) (store.Store, error) {
		called = true
		return store.NewMemoryStore(location), nil
	}

	svc, err := service.New(context.Background(), "", service.WithOpener(opener))
	assert.Nil(t, svc)
	assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
	assert.ErrorContains(t, err, "location not specified")
	assert.False(t, called, "opener must not be called without a location")
}

func TestNewOpenFailure(t *testing.T) {
	svc, err := service.New(context.Background(), "somewhere", service.WithBackend("couchdb"))
	assert.Nil(t, svc)
	assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
	assert.ErrorContains(t, err, "somewhere")
}

func TestNewStatusCheckFailure(t *testing.T) {
	var opened *statusStore
	opener := func(backend, location string) (store.Store, error) {
		opened = &statusStore{
			Store: store.NewMemoryStore(location),
			info: func(context.Context) (*store.Info, error) {
				return nil, errors.New("disk unavailable")
			},
		}
		return opened, nil
	}

	svc, err := service.New(context.Background(), t.Name(), service.WithOpener(opener))
	assert.Nil(t, svc)
	assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
	assert.ErrorContains(t, err, "incorrect configuration for "+t.Name())
	require.NotNil(t, opened)
	assert.True(t, opened.closed, "handle must be released after a failed status check")
}

func TestNewNilInfo(t *testing.T) {
	opener := func(backend, location string) (store.Store, error) {
		return &statusStore{
			Store: store.NewMemoryStore(location),
			info:  func(context.Context) (*store.Info, error) { return nil, nil },
		}, nil
	}

	_, err := service.New(context.Background(), t.Name(), service.WithOpener(opener))
	assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
}

func TestNewPassesBackendToOpener(t *testing.T) {
	var gotBackend, gotLocation string
	opener := func(backend, location string) (store.Store, error) {
		gotBackend, gotLocation = backend, location
		return store.NewMemoryStore(location), nil
	}

	svc, err := service.New(context.Background(), t.Name(),
		service.WithBackend(store.BackendSqlite), service.WithOpener(opener))
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, store.BackendSqlite, gotBackend)
	assert.Equal(t, t.Name(), gotLocation)
	assert.Equal(t, store.BackendSqlite, svc.Backend())
	assert.Equal(t, t.Name(), svc.Location())
}

func TestPostLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService(t)

	created, err := svc.Create(ctx, store.Document{"desc": "Post 1"})
	require.NoError(t, err)
	assert.True(t, created.OK)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{24}$`), created.ID)
	assert.Regexp(t, `^1-`, created.Rev)

	updated, err := svc.FindByIDAndUpdate(ctx, created.ID, store.Document{"title": "Post 1 title"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Regexp(t, `^2-`, updated.Rev)

	doc, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Document{
		"_id":   created.ID,
		"_rev":  updated.Rev,
		"desc":  "Post 1",
		"title": "Post 1 title",
	}, doc)

	all, err := svc.GetAllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0]["id"])

	deleted, err := svc.FindByIDAndDelete(ctx, created.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^3-`, deleted.Rev)

	_, err = svc.FindByID(ctx, created.ID)
	assert.Equal(t, docs.KindNotFound, docs.KindOf(err))

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, info.DocCount)
	assert.Equal(t, uint64(3), info.UpdateSeq)
	assert.Equal(t, store.BackendMemory, info.Backend)
}

func TestOperationsAfterClose(t *testing.T) {
	ctx := context.Background()
	svc, err := service.New(ctx, t.Name(), service.WithBackend(store.BackendMemory))
	require.NoError(t, err)

	created, err := svc.Create(ctx, store.Document{"a": float64(1)})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	calls := map[string]func() error{
		"create": func() error { _, err := svc.Create(ctx, store.Document{}); return err },
		"find":   func() error { _, err := svc.FindByID(ctx, created.ID); return err },
		"update": func() error { _, err := svc.FindByIDAndUpdate(ctx, created.ID, nil); return err },
		"delete": func() error { _, err := svc.FindByIDAndDelete(ctx, created.ID); return err },
		"list":   func() error { _, err := svc.GetAllDocuments(ctx); return err },
		"info":   func() error { _, err := svc.Info(ctx); return err },
		"close":  svc.Close,
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
			assert.ErrorContains(t, err, "service closed")
		})
	}
}

func TestWithSchema(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService(t, service.WithSchema(map[string]any{
		"type":     "object",
		"required": []any{"desc"},
		"properties": map[string]any{
			"desc": map[string]any{"type": "string"},
		},
	}))

	_, err := svc.Create(ctx, store.Document{"title": "no desc"})
	assert.Equal(t, docs.KindPrecondition, docs.KindOf(err))
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	created, err := svc.Create(ctx, store.Document{"desc": "Post 1"})
	require.NoError(t, err)

	_, err = svc.FindByIDAndUpdate(ctx, created.ID, store.Document{"desc": float64(7)})
	assert.Equal(t, docs.KindPrecondition, docs.KindOf(err))

	_, err = svc.FindByIDAndDelete(ctx, created.ID)
	assert.NoError(t, err)
}

func TestWithSchemaAcceptsGoTypes(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService(t, service.WithSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{"type": "array"},
			"meta": map[string]any{"type": "object"},
		},
	}))

	created, err := svc.Create(ctx, store.Document{
		"tags": []string{"a"},
		"meta": store.Document{"k": "v"},
	})
	require.NoError(t, err)

	_, err = svc.FindByIDAndUpdate(ctx, created.ID, store.Document{"meta": map[string]string{"k": "w"}})
	require.NoError(t, err)

	doc, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, doc["tags"])
	assert.Equal(t, map[string]any{"k": "w"}, doc["meta"])
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		Backend:  store.BackendJSON,
		Location: filepath.Join(t.TempDir(), "posts"),
	}

	svc, err := service.NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	created, err := svc.Create(ctx, store.Document{"desc": "persisted"})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	reopened, err := service.NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", doc["desc"])
	assert.Equal(t, store.BackendJSON, reopened.Backend())
}

func TestCloseDuringOperations(t *testing.T) {
	ctx := context.Background()
	svc, err := service.New(ctx, t.Name(), service.WithBackend(store.BackendMemory))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := svc.Create(ctx, store.Document{"n": float64(j)}); err != nil {
					assert.Equal(t, docs.KindConfiguration, docs.KindOf(err))
					return
				}
			}
		}()
	}
	require.NoError(t, svc.Close())
	wg.Wait()
}
