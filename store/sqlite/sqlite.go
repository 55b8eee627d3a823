// Package sqlite provides a SQLite based implementation of [store.DocumentStore].
// The three logical stores share one database file and one documents table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

// Config holds the datastore options
type Config struct {
	Logger        logger.Logger
	ExportMetrics bool
}

// Datastore owns the database handle shared by its logical stores
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	refs             atomic.Int32
	closeOnce        sync.Once
}

// Prepare a raw DSN from config for use with SQLite, specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New opens the database at uri. The schema must have been migrated with [Migrate].
func New(uri string, cfg *Config) (*Datastore, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "datahub")
		if err := prometheus.Register(collector); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &Datastore{
		stbl:             sq.StatementBuilder.RunWith(db),
		db:               db,
		logger:           log,
		dbStatsCollector: collector,
	}, nil
}

// Store returns the logical store with the given name. The database is closed
// once every returned store has been closed.
func (d *Datastore) Store(name string) *Store {
	d.refs.Add(1)
	return &Store{ds: d, name: name}
}

// Stores returns the staging, final and trace stores
func (d *Datastore) Stores() store.Stores {
	return store.Stores{
		Staging: d.Store(store.StagingName),
		Final:   d.Store(store.FinalName),
		Trace:   d.Store(store.TraceName),
	}
}

// Close closes the database regardless of open stores
func (d *Datastore) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.dbStatsCollector != nil {
			prometheus.Unregister(d.dbStatsCollector)
		}
		err = d.db.Close()
	})
	return err
}

// Store is one logical store of a [Datastore]
type Store struct {
	ds     *Datastore
	name   string
	closed atomic.Bool
}

var _ store.DocumentStore = (*Store)(nil)

// Read see [store.DocumentStore].Read.
func (s *Store) Read(ctx context.Context, uri string) (*models.Document, error) {
	var (
		format      string
		content     []byte
		collections string
	)
	err := s.ds.stbl.
		Select("format", "content", "collections").
		From("documents").
		Where(sq.Eq{"store": s.name, "uri": uri}).
		QueryRowContext(ctx).
		Scan(&format, &content, &collections)
	if err != nil {
		return nil, s.handleSQLError("read", err)
	}
	return decodeRow(uri, format, content, collections)
}

// Write see [store.DocumentStore].Write.
func (s *Store) Write(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.URI == "" {
		return errors.New("document uri is required")
	}
	collections, err := json.Marshal(nonNil(doc.Collections))
	if err != nil {
		return fmt.Errorf("marshal collections: %w", err)
	}

	return s.inTxn(ctx, "write", func(txn *sql.Tx) error {
		_, err := s.ds.stbl.
			Insert("documents").
			Columns("store", "uri", "format", "content", "collections", "updated_at").
			Values(s.name, doc.URI, string(doc.Format), doc.Content, string(collections), sq.Expr("datetime('subsec')")).
			Suffix("ON CONFLICT (store, uri) DO UPDATE SET format = excluded.format, content = excluded.content, " +
				"collections = excluded.collections, updated_at = excluded.updated_at").
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return err
		}

		_, err = s.ds.stbl.
			Delete("document_collections").
			Where(sq.Eq{"store": s.name, "uri": doc.URI}).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		if len(doc.Collections) == 0 {
			return nil
		}

		insert := s.ds.stbl.
			Insert("document_collections").
			Columns("store", "uri", "collection").
			Suffix("ON CONFLICT DO NOTHING")
		for _, c := range doc.Collections {
			insert = insert.Values(s.name, doc.URI, c)
		}
		_, err = insert.RunWith(txn).ExecContext(ctx)
		return err
	})
}

// Delete see [store.DocumentStore].Delete.
func (s *Store) Delete(ctx context.Context, uri string) error {
	return s.inTxn(ctx, "delete", func(txn *sql.Tx) error {
		for _, table := range []string{"documents", "document_collections"} {
			_, err := s.ds.stbl.
				Delete(table).
				Where(sq.Eq{"store": s.name, "uri": uri}).
				RunWith(txn).
				ExecContext(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear see [store.DocumentStore].Clear.
func (s *Store) Clear(ctx context.Context) error {
	return s.inTxn(ctx, "clear", func(txn *sql.Tx) error {
		for _, table := range []string{"documents", "document_collections"} {
			_, err := s.ds.stbl.
				Delete(table).
				Where(sq.Eq{"store": s.name}).
				RunWith(txn).
				ExecContext(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Query see [store.DocumentStore].Query.
// Collection and URI prefix are evaluated by SQLite, property conditions while iterating.
func (s *Store) Query(ctx context.Context, q store.Query) (store.DocumentIterator, error) {
	sb := s.selectBuilder(q, "uri", "format", "content", "collections").OrderBy("uri")
	if len(q.Conditions) == 0 && q.Limit > 0 {
		sb = sb.Limit(uint64(q.Limit))
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, s.handleSQLError("query", err)
	}
	return &rowsIterator{store: s, rows: rows, query: q}, nil
}

// Count see [store.DocumentStore].Count.
func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	if len(q.Conditions) == 0 {
		var n int
		sb := s.selectBuilder(store.Query{Collection: q.Collection, URIPrefix: q.URIPrefix}, "COUNT(*)")
		if err := sb.QueryRowContext(ctx).Scan(&n); err != nil {
			return 0, s.handleSQLError("count", err)
		}
		if q.Limit > 0 && n > q.Limit {
			n = q.Limit
		}
		return n, nil
	}

	it, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	docs, err := store.Collect(ctx, it)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Close releases this store. The database is closed with the last store.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ds.refs.Add(-1) == 0 {
		return s.ds.Close()
	}
	return nil
}

func (s *Store) selectBuilder(q store.Query, columns ...string) sq.SelectBuilder {
	sb := s.ds.stbl.
		Select(columns...).
		From("documents").
		Where(sq.Eq{"store": s.name})
	if q.Collection != "" {
		sb = sb.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM document_collections c WHERE c.store = documents.store AND c.uri = documents.uri AND c.collection = ?)",
			q.Collection,
		))
	}
	if q.URIPrefix != "" {
		sb = sb.Where(sq.Expr("substr(uri, 1, length(?)) = ?", q.URIPrefix, q.URIPrefix))
	}
	return sb
}

func (s *Store) inTxn(ctx context.Context, op string, fn func(txn *sql.Tx) error) error {
	var txn *sql.Tx
	err := busyRetry(ctx, func() error {
		var err error
		txn, err = s.ds.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return s.handleSQLError(op, err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	if err := busyRetry(ctx, func() error { return fn(txn) }); err != nil {
		return s.handleSQLError(op, err)
	}
	if err := txn.Commit(); err != nil {
		return s.handleSQLError(op, err)
	}
	return nil
}

// handleSQLError maps missing rows to [store.ErrNotFound] and every other
// database failure to a store unavailable error.
func (s *Store) handleSQLError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.ds.logger.Error("sqlite operation failed",
		zap.String("store", s.name), zap.String("op", op), zap.Error(err))
	return models.ErrUnavailable(s.name, op, fmt.Errorf("sql error: %w", err))
}

type rowsIterator struct {
	store   *Store
	rows    *sql.Rows
	query   store.Query
	yielded int
	done    bool
}

var _ store.DocumentIterator = (*rowsIterator)(nil)

// Next see [store.Iterator].Next.
func (it *rowsIterator) Next(ctx context.Context) (*models.Document, error) {
	if it.done {
		return nil, store.ErrIteratorDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for {
		if it.query.Limit > 0 && it.yielded >= it.query.Limit {
			it.Stop()
			return nil, store.ErrIteratorDone
		}
		if !it.rows.Next() {
			err := it.rows.Err()
			it.Stop()
			if err != nil {
				return nil, it.store.handleSQLError("query", err)
			}
			return nil, store.ErrIteratorDone
		}

		var (
			uri, format, collections string
			content                  []byte
		)
		if err := it.rows.Scan(&uri, &format, &content, &collections); err != nil {
			it.Stop()
			return nil, it.store.handleSQLError("query", err)
		}
		doc, err := decodeRow(uri, format, content, collections)
		if err != nil {
			it.Stop()
			return nil, err
		}
		if !matchesConditions(it.query.Conditions, doc) {
			continue
		}
		it.yielded++
		return doc, nil
	}
}

// Stop see [store.Iterator].Stop.
func (it *rowsIterator) Stop() {
	if it.done {
		return
	}
	it.done = true
	_ = it.rows.Close()
}

func matchesConditions(conds []store.Condition, doc *models.Document) bool {
	for _, c := range conds {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}

func decodeRow(uri, format string, content []byte, collections string) (*models.Document, error) {
	var colls []string
	if err := json.Unmarshal([]byte(collections), &colls); err != nil {
		return nil, fmt.Errorf("decode collections of %s: %w", uri, err)
	}
	return &models.Document{
		URI:         uri,
		Format:      models.ContentFormat(format),
		Content:     content,
		Collections: colls,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}

// SQLite returns SQLITE_BUSY when the database is locked rather than waiting for the lock.
// busyRetry retries fn with a short backoff while it keeps failing that way.
func busyRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 10

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), maxRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isBusyError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
