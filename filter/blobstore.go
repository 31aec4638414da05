package filter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/streamcompute/errors"
)

// BlobStore keeps record payloads too large to travel through the log.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// MemoryBlobStore is a map-backed BlobStore for tests and single-process runs.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore returns an empty store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data.
func (s *MemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the stored data or ErrKeyNotFound.
func (s *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key),
			"MemoryBlobStore", "Get", "blob lookup")
	}
	return data, nil
}

// Len returns the number of blobs.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// RedisBlobStore keeps blobs in Redis with an expiration, so abandoned
// payloads do not accumulate.
type RedisBlobStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisBlobStore wraps a go-redis client. A non-positive ttl keeps blobs
// forever.
func NewRedisBlobStore(client redis.Cmdable, ttl time.Duration) *RedisBlobStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisBlobStore{client: client, ttl: ttl}
}

// Put stores data under key.
func (s *RedisBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.WrapTransient(err, "RedisBlobStore", "Put", "redis SET")
	}
	return nil
}

// Get loads the blob stored under key.
func (s *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key),
			"RedisBlobStore", "Get", "blob lookup")
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "RedisBlobStore", "Get", "redis GET")
	}
	return data, nil
}
