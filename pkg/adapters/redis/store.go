// Package redis provides the run store and the cross-process core lock on
// top of Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/hetcore/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the adapters write.
const DefaultPrefix = "hetcore:"

// Store implements ports.RunStore. Records are JSON values with an optional
// TTL; a sorted set indexes them by expiry so List can drop stale ids
// lazily.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL expires records ttl after they are saved. Zero keeps them forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to addr.
func New(addr, password string, db int, opts ...StoreOption) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...StoreOption) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client so a Locker can share it.
func (s *Store) Client() *backend.Client { return s.client }

func (s *Store) key(id string) string { return s.prefix + "run:" + id }
func (s *Store) index() string        { return s.prefix + "runs" }

// Save writes the record and indexes it.
func (s *Store) Save(ctx context.Context, run *domain.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	score := float64(time.Now().Add(s.ttl).UnixNano())
	_, err = s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Set(ctx, s.key(run.ID), data, s.ttl)
		p.ZAdd(ctx, s.index(), backend.Z{Score: score, Member: run.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// Load fetches a record. Expired and deleted records yield
// domain.ErrRunNotFound.
func (s *Store) Load(ctx context.Context, id string) (*domain.RunRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	var run domain.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// Delete removes the record and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Del(ctx, s.key(id))
		p.ZRem(ctx, s.index(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return nil
}

// List returns the ids of live records, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		now := strconv.FormatInt(time.Now().UnixNano(), 10)
		if err := s.client.ZRemRangeByScore(ctx, s.index(), "-inf", "("+now).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune run index: %w", err)
		}
	}
	ids, err := s.client.ZRange(ctx, s.index(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }
