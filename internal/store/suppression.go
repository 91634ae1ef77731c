package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BlobStore is a minimal key-value contract for small string blobs. The
// suppression set is stored as a JSON array of post ids under a device-scoped
// key; the store is injected so ranking stays testable without Redis.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// SuppressionSet is the set of post ids a viewer chose to de-rank. Writes are
// append-only; ids are only ever added by explicit user action.
type SuppressionSet struct {
	store  BlobStore
	key    string
	logger zerolog.Logger
}

// NewSuppressionSet wraps a blob store with JSON-array encoding for one
// device-scoped key.
func NewSuppressionSet(store BlobStore, key string, logger zerolog.Logger) *SuppressionSet {
	return &SuppressionSet{
		store:  store,
		key:    key,
		logger: logger.With().Str("component", "suppression_set").Logger(),
	}
}

// Load reads the current membership. Decode or store failures degrade to an
// empty set so ranking keeps working.
func (s *SuppressionSet) Load(ctx context.Context) map[uint]struct{} {
	members := make(map[uint]struct{})

	raw, err := s.store.Get(ctx, s.key)
	if err != nil || raw == "" {
		return members
	}

	var ids []uint
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("invalid suppression blob, treating as empty")
		return members
	}

	for _, id := range ids {
		members[id] = struct{}{}
	}

	return members
}

// Add inserts a post id. Adding an id twice leaves the stored set unchanged.
func (s *SuppressionSet) Add(ctx context.Context, postID uint) error {
	members := s.Load(ctx)
	if _, exists := members[postID]; exists {
		return nil
	}
	members[postID] = struct{}{}

	ids := make([]uint, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return s.store.Set(ctx, s.key, string(payload))
}

// MemoryBlobStore is an in-process BlobStore used in tests and as a fallback
// when Redis is unavailable.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]string
}

// NewMemoryBlobStore constructs an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]string)}
}

func (m *MemoryBlobStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blobs[key], nil
}

func (m *MemoryBlobStore) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = value
	return nil
}

// RedisBlobStore keeps blobs in Redis so suppression survives restarts of a
// single API node.
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore wraps a Redis client as a BlobStore.
func NewRedisBlobStore(client *redis.Client) *RedisBlobStore {
	return &RedisBlobStore{client: client}
}

func (r *RedisBlobStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *RedisBlobStore) Set(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}
