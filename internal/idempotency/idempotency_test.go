package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key("acme", core.PlatformTelegram, "c1", "m1")
	b := Key("acme", core.PlatformTelegram, "c1", "m1")
	if a != b {
		t.Errorf("equal inputs produced different keys: %q vs %q", a, b)
	}
	if a == Key("acme", core.PlatformTelegram, "c1", "m2") {
		t.Error("different msg ids produced the same key")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestMemoryPutIfAbsent(t *testing.T) {
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	inserted, err := m.PutIfAbsent(context.Background(), "k1", time.Hour)
	if err != nil || !inserted {
		t.Fatalf("first put: inserted=%v err=%v", inserted, err)
	}

	inserted, _ = m.PutIfAbsent(context.Background(), "k1", time.Hour)
	if inserted {
		t.Error("second put within TTL should report duplicate")
	}

	now = now.Add(2 * time.Hour)
	inserted, _ = m.PutIfAbsent(context.Background(), "k1", time.Hour)
	if !inserted {
		t.Error("put after TTL expiry should insert again")
	}
}

type fakeKV struct {
	err  error
	keys map[string]bool
}

func (f *fakeKV) Create(key string, _ []byte) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.keys[key] {
		return 0, nats.ErrKeyExists
	}
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	f.keys[key] = true
	return 1, nil
}

func TestKVStorePutIfAbsent(t *testing.T) {
	s := NewKVStore(&fakeKV{keys: map[string]bool{}})

	inserted, err := s.PutIfAbsent(context.Background(), "k1", time.Hour)
	if err != nil || !inserted {
		t.Fatalf("first put: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.PutIfAbsent(context.Background(), "k1", time.Hour)
	if err != nil {
		t.Fatalf("duplicate put returned error: %v", err)
	}
	if inserted {
		t.Error("duplicate put should report existing key")
	}
}

func TestGuardDuplicateAndFailOpen(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	g := NewGuard(NewMemory(), time.Hour, metrics)
	if !g.ShouldProcess(context.Background(), "k1") {
		t.Fatal("first sighting should process")
	}
	if g.ShouldProcess(context.Background(), "k1") {
		t.Error("duplicate should be suppressed")
	}

	broken := NewKVStore(&fakeKV{err: errors.New("bucket offline")})
	g = NewGuard(broken, time.Hour, metrics)
	if !g.ShouldProcess(context.Background(), "k2") {
		t.Error("store failure should fail open")
	}
}

func TestGuardWithoutMetrics(t *testing.T) {
	g := NewGuard(NewMemory(), time.Hour, nil)
	if !g.ShouldProcess(context.Background(), "k1") {
		t.Fatal("first sighting should process")
	}
	if g.ShouldProcess(context.Background(), "k1") {
		t.Error("duplicate should be suppressed")
	}

	g = NewGuard(NewKVStore(&fakeKV{err: errors.New("bucket offline")}), time.Hour, nil)
	if !g.ShouldProcess(context.Background(), "k2") {
		t.Error("store failure should fail open")
	}
}
