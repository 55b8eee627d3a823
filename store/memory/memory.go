// Package memory provides an in-memory implementation of [store.DocumentStore].
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("memory store closed")

// Store keeps documents in a map guarded by a RWMutex.
// Documents are copied on the way in and out.
type Store struct {
	name   string
	mu     sync.RWMutex
	docs   map[string]*models.Document
	closed bool
}

var _ store.DocumentStore = (*Store)(nil)

// New creates an empty store. The name is only used in error messages.
func New(name string) *Store {
	return &Store{
		name: name,
		docs: make(map[string]*models.Document),
	}
}

// NewStores creates three empty in-memory stores
func NewStores() store.Stores {
	return store.Stores{
		Staging: New(store.StagingName),
		Final:   New(store.FinalName),
		Trace:   New(store.TraceName),
	}
}

func (s *Store) check(op string) error {
	if s.closed {
		return models.ErrUnavailable(s.name, op, ErrClosed)
	}
	return nil
}

// Read see [store.DocumentStore].Read.
func (s *Store) Read(ctx context.Context, uri string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("read"); err != nil {
		return nil, err
	}
	doc, ok := s.docs[uri]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc.Clone(), nil
}

// Write see [store.DocumentStore].Write.
func (s *Store) Write(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.URI == "" {
		return errors.New("document uri is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("write"); err != nil {
		return err
	}
	s.docs[doc.URI] = doc.Clone()
	return nil
}

// Delete see [store.DocumentStore].Delete.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("delete"); err != nil {
		return err
	}
	delete(s.docs, uri)
	return nil
}

// Query see [store.DocumentStore].Query.
// The result is a snapshot taken when Query is called.
func (s *Store) Query(ctx context.Context, q store.Query) (store.DocumentIterator, error) {
	docs, err := s.match(ctx, q)
	if err != nil {
		return nil, err
	}
	return store.NewStaticIterator(docs), nil
}

// Count see [store.DocumentStore].Count.
func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	docs, err := s.match(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *Store) match(ctx context.Context, q store.Query) ([]*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("query"); err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	var out []*models.Document
	for _, uri := range uris {
		doc := s.docs[uri]
		if !q.Matches(doc) {
			continue
		}
		out = append(out, doc.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Clear see [store.DocumentStore].Clear.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("clear"); err != nil {
		return err
	}
	s.docs = make(map[string]*models.Document)
	return nil
}

// Close see [store.DocumentStore].Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
