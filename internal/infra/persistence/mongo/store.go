// Package mongo provides a MongoDB-backed widget store. Each snapshot bucket
// is one document keyed by the bucket name.
package mongo

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"widgetcore/internal/infra/persistence/memory"
	"widgetcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	// DefaultDatabase is used when no database name is configured.
	DefaultDatabase = "widgetcore"
	// DefaultCollection holds the bucket documents.
	DefaultCollection = "state"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Collection is the subset of *mongo.Collection used by the store.
type Collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

type bucketDocument struct {
	Bucket  string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

// Store persists snapshot buckets to MongoDB after every transaction.
type Store struct {
	*memory.Store
	coll   Collection
	client *mongo.Client
	mu     sync.Mutex
}

// NewStore connects to MongoDB and hydrates the store from the state collection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	store, err := NewStoreWithCollection(ctx, client.Database(cfg.Database).Collection(cfg.Collection))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store.client = client
	return store, nil
}

// NewStoreWithCollection wraps an existing collection handle.
func NewStoreWithCollection(ctx context.Context, coll Collection) (*Store, error) {
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find state: %w", err)
	}
	var docs []bucketDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	payloads := make(map[string][]byte, len(docs))
	for _, doc := range docs {
		payloads[doc.Bucket] = doc.Payload
	}
	snapshot, err := memory.DecodeBuckets(payloads)
	if err != nil {
		return nil, err
	}
	mem, err := memory.LoadStore(snapshot)
	if err != nil {
		return nil, err
	}
	return &Store{Store: mem, coll: coll}, nil
}

// Buckets are upserted in order; the sequence bucket is written last so a
// partial write never lets ids run backwards.
func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloads, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	for _, bucket := range memory.Buckets {
		doc := bucketDocument{Bucket: bucket, Payload: payloads[bucket]}
		if _, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: bucket}}, doc, opts); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return nil
}

// RunInTransaction applies fn in memory and then writes the buckets to MongoDB.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return domain.Result{}, domain.Internal("mongo persist", err)
	}
	return res, nil
}

// ReplaceState swaps the whole state and writes it through.
func (s *Store) ReplaceState(ctx context.Context, snapshot domain.Snapshot) error {
	before := s.ExportState()
	if err := s.Store.ReplaceState(ctx, snapshot); err != nil {
		return err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return domain.Internal("mongo persist", err)
	}
	return nil
}

// Close disconnects the client when the store owns one.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
