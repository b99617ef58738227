// Package redis provides a Redis-backed widget store. The in-memory state is
// written to a single hash whose fields are the snapshot buckets.
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"widgetcore/internal/infra/persistence/memory"
	"widgetcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultKey is the hash key used when none is configured.
const DefaultKey = "widgetcore:state"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Client is the subset of the go-redis client used by the store.
type Client interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...any) *goredis.IntCmd
	Close() error
}

// Store persists the snapshot buckets to a Redis hash after every transaction.
type Store struct {
	*memory.Store
	client Client
	key    string
	mu     sync.Mutex
}

// NewStore connects to Redis and hydrates the store from the configured key.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	store, err := NewStoreWithClient(ctx, client, cfg.Key)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(ctx context.Context, client Client, key string) (*Store, error) {
	if key == "" {
		key = DefaultKey
	}
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	payloads := make(map[string][]byte, len(fields))
	for bucket, payload := range fields {
		payloads[bucket] = []byte(payload)
	}
	snapshot, err := memory.DecodeBuckets(payloads)
	if err != nil {
		return nil, err
	}
	mem, err := memory.LoadStore(snapshot)
	if err != nil {
		return nil, err
	}
	return &Store{Store: mem, client: client, key: key}, nil
}

// HSET with several fields is applied atomically by the server.
func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloads, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	values := make([]any, 0, 2*len(memory.Buckets))
	for _, bucket := range memory.Buckets {
		values = append(values, bucket, payloads[bucket])
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

// RunInTransaction applies fn in memory and then writes the snapshot to Redis.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return domain.Result{}, domain.Internal("redis persist", err)
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
		return domain.Internal("redis persist", err)
	}
	return nil
}

// Key returns the hash key holding the state.
func (s *Store) Key() string { return s.key }

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }
