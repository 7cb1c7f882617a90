package gateway

import (
	"errors"
	"testing"

	"github.com/greentic-ai/greentic-messaging/internal/idempotency"
)

func TestIdempotencyStoreFallsBackToMemory(t *testing.T) {
	g := New()

	store := g.idempotencyStore(nil, errors.New("bucket unreachable"))
	if _, ok := store.(*idempotency.Memory); !ok {
		t.Errorf("store on KV failure = %T, want *idempotency.Memory", store)
	}

	store = g.idempotencyStore(nil, nil)
	if _, ok := store.(*idempotency.KVStore); !ok {
		t.Errorf("store on healthy KV = %T, want *idempotency.KVStore", store)
	}
}
