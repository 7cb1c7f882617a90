package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// marker is the sentinel value stored under each key; the key's
// presence is the information.
var marker = []byte("1")

// KV is the subset of the JetStream key-value API the store needs.
type KV interface {
	Create(key string, value []byte) (uint64, error)
}

// KVStore implements Store on a JetStream KV bucket. Entry expiry is
// the bucket's TTL, so the per-call ttl is ignored here; the bucket
// is created with the configured window.
type KVStore struct {
	kv KV
}

func NewKVStore(kv KV) *KVStore {
	return &KVStore{kv: kv}
}

// PutIfAbsent atomically creates the key. A create conflict means the
// key was already seen within the bucket TTL.
func (s *KVStore) PutIfAbsent(ctx context.Context, key string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.kv.Create(key, marker)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, nats.ErrKeyExists) {
		return false, nil
	}
	return false, fmt.Errorf("kv create: %w", err)
}
