//go:generate mockgen -source store.go -destination ../internal/mocks/mock_store.go -package mocks

// Package store defines the document store interface shared by the staging,
// final and trace repositories, together with the query model used to select
// documents from them.
package store

import (
	"context"
	"errors"

	"github.com/simon020286/go-datahub/models"
)

var (
	// ErrNotFound is returned by Read when no document has the URI
	ErrNotFound = errors.New("document not found")
	// ErrIteratorDone is returned by Next when the iterator is exhausted
	ErrIteratorDone = errors.New("iterator done")
)

// Names of the logical stores
const (
	StagingName = "staging"
	FinalName   = "final"
	TraceName   = "trace"
)

// DocumentStore is an opaque key/document repository
type DocumentStore interface {
	// Read returns the document stored under uri, or ErrNotFound
	Read(ctx context.Context, uri string) (*models.Document, error)
	// Write stores the document under its URI, replacing any previous one
	Write(ctx context.Context, doc *models.Document) error
	// Delete removes the document stored under uri. Deleting a missing URI is not an error.
	Delete(ctx context.Context, uri string) error
	// Query returns a lazy iterator over the matching documents, ordered by URI
	Query(ctx context.Context, q Query) (DocumentIterator, error)
	// Count returns the number of matching documents
	Count(ctx context.Context, q Query) (int, error)
	// Clear removes every document
	Clear(ctx context.Context) error
	// Close releases the underlying resources
	Close() error
}

// Iterator is a lazy, finite sequence. It is closed by explicitly calling Stop() or
// by calling Next() until it returns ErrIteratorDone.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, error)
	Stop()
}

// DocumentIterator iterates over documents
type DocumentIterator = Iterator[*models.Document]

// Stores groups the three logical stores used by a flow run
type Stores struct {
	Staging DocumentStore
	Final   DocumentStore
	Trace   DocumentStore
}

// Validate checks that every store is set
func (s Stores) Validate() error {
	if s.Staging == nil || s.Final == nil || s.Trace == nil {
		return errors.New("staging, final and trace stores are required")
	}
	return nil
}

// Close closes the three stores, returning the joined errors
func (s Stores) Close() error {
	var errs []error
	for _, ds := range []DocumentStore{s.Staging, s.Final, s.Trace} {
		if ds != nil {
			errs = append(errs, ds.Close())
		}
	}
	return errors.Join(errs...)
}

// Collect drains the iterator into a slice and stops it
func Collect(ctx context.Context, it DocumentIterator) ([]*models.Document, error) {
	defer it.Stop()

	var docs []*models.Document
	for {
		doc, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return docs, nil
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// URIs returns the URIs of the documents matching q, ordered
func URIs(ctx context.Context, ds DocumentStore, q Query) ([]string, error) {
	it, err := ds.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer it.Stop()

	var uris []string
	for {
		doc, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return uris, nil
			}
			return nil, err
		}
		uris = append(uris, doc.URI)
	}
}

// StaticIterator iterates over an in-memory slice
type StaticIterator struct {
	docs []*models.Document
}

var _ DocumentIterator = (*StaticIterator)(nil)

// NewStaticIterator returns an iterator over docs
func NewStaticIterator(docs []*models.Document) *StaticIterator {
	return &StaticIterator{docs: docs}
}

// Next see [Iterator].Next.
func (s *StaticIterator) Next(ctx context.Context) (*models.Document, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(s.docs) == 0 {
		return nil, ErrIteratorDone
	}
	next := s.docs[0]
	s.docs = s.docs[1:]
	return next, nil
}

// Stop see [Iterator].Stop.
func (s *StaticIterator) Stop() {
	s.docs = nil
}
