// Package service binds the document operations to a single store handle
// that is opened and checked at construction.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stevemurr/docsvc/config"
	"github.com/stevemurr/docsvc/docs"
	"github.com/stevemurr/docsvc/schema"
	"github.com/stevemurr/docsvc/store"
)

// Operation names used for failures that happen in this package.
const (
	OpNew   = "new"
	OpInfo  = "info"
	OpClose = "close"
)

var (
	errNoLocation = errors.New("location not specified")
	errClosed     = errors.New("service closed")
)

// Service owns one store handle. It is only returned after the handle passed
// a status check, and it is safe for concurrent use.
type Service struct {
	location string
	backend  string

	mu sync.RWMutex
	db store.Store // nil once closed
}

// New opens the store at location, checks that it answers a status call and
// returns a ready Service. Any failure is a docs.KindConfiguration error and
// leaves no handle open.
func New(ctx context.Context, location string, opts ...Option) (*Service, error) {
	o := options{backend: store.BackendJSON, opener: store.Open}
	for _, opt := range opts {
		opt(&o)
	}

	if location == "" {
		return nil, configFailure(location, errNoLocation)
	}

	db, err := o.opener(o.backend, location)
	if err != nil {
		return nil, configFailure(location, fmt.Errorf("open %s store at %s: %w", o.backend, location, err))
	}
	if o.schema != nil {
		db = schema.Guard(db, o.schema)
	}

	info, err := db.Info(ctx)
	if err == nil && info == nil {
		err = errors.New("store returned no info")
	}
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logrus.WithField("location", location).WithError(cerr).Warn("Failed to close store after status check")
		}
		return nil, configFailure(location, fmt.Errorf("incorrect configuration for %s: %w", location, err))
	}

	logrus.WithFields(logrus.Fields{
		"backend":    info.Backend,
		"db_name":    info.DBName,
		"doc_count":  info.DocCount,
		"update_seq": info.UpdateSeq,
	}).Infof("Configured document service for %s", location)

	return &Service{location: location, backend: o.backend, db: db}, nil
}

// NewFromConfig calls New with the location and backend from cfg. Options
// given here are applied after the backend from cfg.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	return New(ctx, cfg.Location, append([]Option{WithBackend(cfg.Backend)}, opts...)...)
}

func configFailure(location string, err error) error {
	logrus.WithField("location", location).WithError(err).Error("Document service configuration failed")
	return docs.NewError(docs.KindConfiguration, OpNew, err)
}

func closedFailure(op string) error {
	logrus.WithField("op", op).Warn("Document service used after close")
	return docs.NewError(docs.KindConfiguration, op, errClosed)
}

// Location returns the location the service was opened with.
func (s *Service) Location() string {
	return s.location
}

// Backend returns the backend name the service was opened with.
func (s *Service) Backend() string {
	return s.backend
}

// Create stores fields as a new document. See docs.Create.
func (s *Service) Create(ctx context.Context, fields store.Document) (*store.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(docs.OpCreate)
	}
	return docs.Create(ctx, s.db, fields)
}

// FindByID returns the document with the given id. See docs.FindByID.
func (s *Service) FindByID(ctx context.Context, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(docs.OpFindByID)
	}
	return docs.FindByID(ctx, s.db, id)
}

// FindByIDAndUpdate merges patch into the document. See docs.FindByIDAndUpdate.
func (s *Service) FindByIDAndUpdate(ctx context.Context, id string, patch store.Document) (*store.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(docs.OpFindByIDAndUpdate)
	}
	return docs.FindByIDAndUpdate(ctx, s.db, id, patch)
}

// FindByIDAndDelete deletes the document. See docs.FindByIDAndDelete.
func (s *Service) FindByIDAndDelete(ctx context.Context, id string) (*store.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(docs.OpFindByIDAndDelete)
	}
	return docs.FindByIDAndDelete(ctx, s.db, id)
}

// GetAllDocuments lists every live document. See docs.GetAllDocuments.
func (s *Service) GetAllDocuments(ctx context.Context) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(docs.OpGetAllDocuments)
	}
	return docs.GetAllDocuments(ctx, s.db)
}

// Info returns the status of the underlying store.
func (s *Service) Info(ctx context.Context) (*store.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedFailure(OpInfo)
	}
	info, err := s.db.Info(ctx)
	if err != nil {
		kind := docs.KindStore
		if errors.Is(err, store.ErrClosed) {
			kind = docs.KindConfiguration
		}
		return nil, docs.NewError(kind, OpInfo, err)
	}
	return info, nil
}

// Close releases the store handle after in-flight operations finish. Every
// later call, including Close, returns a docs.KindConfiguration error.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return closedFailure(OpClose)
	}
	db := s.db
	s.db = nil
	if err := db.Close(); err != nil {
		return docs.NewError(docs.KindStore, OpClose, err)
	}
	logrus.WithField("location", s.location).Debug("Document service closed")
	return nil
}
