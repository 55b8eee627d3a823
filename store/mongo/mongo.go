// Package mongo provides a MongoDB implementation of [store.DocumentStore].
// Each logical store is a collection of one database.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

// Config holds the connection options
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	Logger         logger.Logger
}

// Client owns the connection shared by the logical stores
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger logger.Logger
}

type record struct {
	URI         string   `bson:"_id"`
	Format      string   `bson:"format"`
	Content     []byte   `bson:"content"`
	Collections []string `bson:"collections"`
}

// Connect opens a client and checks the connection
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("database connection URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "datahub"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	clientOptions := options.Client().ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("connected to MongoDB", zap.String("database", cfg.Database))
	return &Client{client: client, db: client.Database(cfg.Database), logger: log}, nil
}

// Store returns the logical store backed by the collection name
func (c *Client) Store(name string) *Store {
	return &Store{name: name, coll: c.db.Collection(name), logger: c.logger}
}

// Stores returns the staging, final and trace stores. Closing them does not disconnect the client.
func (c *Client) Stores() store.Stores {
	return store.Stores{
		Staging: c.Store(store.StagingName),
		Final:   c.Store(store.FinalName),
		Trace:   c.Store(store.TraceName),
	}
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Store is one logical store
type Store struct {
	name   string
	coll   *mongo.Collection
	logger logger.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// Read see [store.DocumentStore].Read.
func (s *Store) Read(ctx context.Context, uri string) (*models.Document, error) {
	var rec record
	if err := s.coll.FindOne(ctx, bson.M{"_id": uri}).Decode(&rec); err != nil {
		return nil, s.handleError("read", err)
	}
	return rec.document(), nil
}

// Write see [store.DocumentStore].Write.
func (s *Store) Write(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.URI == "" {
		return errors.New("document uri is required")
	}
	rec := record{
		URI:         doc.URI,
		Format:      string(doc.Format),
		Content:     doc.Content,
		Collections: doc.Collections,
	}
	if rec.Collections == nil {
		rec.Collections = []string{}
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.URI}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return s.handleError("write", err)
	}
	return nil
}

// Delete see [store.DocumentStore].Delete.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": uri}); err != nil {
		return s.handleError("delete", err)
	}
	return nil
}

// Clear see [store.DocumentStore].Clear.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return s.handleError("clear", err)
	}
	return nil
}

// Query see [store.DocumentStore].Query.
// Property conditions are evaluated on the decoded documents.
func (s *Store) Query(ctx context.Context, q store.Query) (store.DocumentIterator, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if len(q.Conditions) == 0 && q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := s.coll.Find(ctx, filter(q), opts)
	if err != nil {
		return nil, s.handleError("query", err)
	}
	return &cursorIterator{store: s, cursor: cursor, query: q}, nil
}

// Count see [store.DocumentStore].Count.
func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	if len(q.Conditions) == 0 {
		opts := options.Count()
		if q.Limit > 0 {
			opts.SetLimit(int64(q.Limit))
		}
		n, err := s.coll.CountDocuments(ctx, filter(q), opts)
		if err != nil {
			return 0, s.handleError("count", err)
		}
		return int(n), nil
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

// Close is a no-op, see [Client.Close]
func (s *Store) Close() error {
	return nil
}

func (s *Store) handleError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("mongo operation failed",
		zap.String("store", s.name), zap.String("op", op), zap.Error(err))
	return models.ErrUnavailable(s.name, op, err)
}

func filter(q store.Query) bson.M {
	f := bson.M{}
	if q.Collection != "" {
		f["collections"] = q.Collection
	}
	if q.URIPrefix != "" {
		f["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(q.URIPrefix)}
	}
	return f
}

func (r record) document() *models.Document {
	return &models.Document{
		URI:         r.URI,
		Format:      models.ContentFormat(r.Format),
		Content:     r.Content,
		Collections: r.Collections,
	}
}

type cursorIterator struct {
	store   *Store
	cursor  *mongo.Cursor
	query   store.Query
	yielded int
	done    bool
}

// Next see [store.Iterator].Next.
func (it *cursorIterator) Next(ctx context.Context) (*models.Document, error) {
	if it.done {
		return nil, store.ErrIteratorDone
	}
	for {
		if it.query.Limit > 0 && it.yielded >= it.query.Limit {
			it.Stop()
			return nil, store.ErrIteratorDone
		}
		if !it.cursor.Next(ctx) {
			err := it.cursor.Err()
			it.Stop()
			if err != nil {
				return nil, it.store.handleError("query", err)
			}
			return nil, store.ErrIteratorDone
		}

		var rec record
		if err := it.cursor.Decode(&rec); err != nil {
			it.Stop()
			return nil, fmt.Errorf("decode document: %w", err)
		}
		doc := rec.document()
		if !matches(it.query.Conditions, doc) {
			continue
		}
		it.yielded++
		return doc, nil
	}
}

// Stop see [store.Iterator].Stop.
func (it *cursorIterator) Stop() {
	if it.done {
		return
	}
	it.done = true
	_ = it.cursor.Close(context.Background())
}

func matches(conds []store.Condition, doc *models.Document) bool {
	for _, c := range conds {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}
