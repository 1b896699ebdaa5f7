package service

import "github.com/stevemurr/docsvc/store"

// Opener opens a store handle for a backend and location.
type Opener func(backend, location string) (store.Store, error)

type options struct {
	backend string
	opener  Opener
	schema  map[string]any
}

// Option configures New.
type Option func(*options)

// WithBackend selects the store backend ("json", "sqlite" or "memory").
func WithBackend(backend string) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithOpener replaces store.Open as the way handles are opened.
func WithOpener(open Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// WithSchema rejects writes whose body does not match schema.
func WithSchema(schema map[string]any) Option {
	return func(o *options) {
		o.schema = schema
	}
}
