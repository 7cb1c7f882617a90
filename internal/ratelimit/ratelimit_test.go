package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

func TestTableOverrides(t *testing.T) {
	overrides, err := ParseOverrides(`{"acme":{"rps":2,"burst":4}}`)
	if err != nil {
		t.Fatal(err)
	}
	table := NewTable(Limits{RPS: 10, Burst: 20}, overrides)

	if got := table.For("acme"); got.RPS != 2 || got.Burst != 4 {
		t.Errorf("For(acme) = %+v, want override", got)
	}
	if got := table.For("other"); got.RPS != 10 || got.Burst != 20 {
		t.Errorf("For(other) = %+v, want default", got)
	}
}

func TestParseOverridesInvalid(t *testing.T) {
	if _, err := ParseOverrides("not json"); err == nil {
		t.Error("expected error for malformed overrides")
	}
	if m, err := ParseOverrides(""); err != nil || m != nil {
		t.Errorf("empty input: m=%v err=%v", m, err)
	}
}

func TestLocalTakeAndRefill(t *testing.T) {
	now := time.Now()
	l := NewLocal()
	l.now = func() time.Time { return now }

	limits := Limits{RPS: 10, Burst: 2}

	for i := 0; i < 2; i++ {
		ok, _, _ := l.Take("k", limits, 1)
		if !ok {
			t.Fatalf("take %d should succeed within burst", i)
		}
	}

	ok, retryAfter, _ := l.Take("k", limits, 1)
	if ok {
		t.Fatal("take beyond burst should be denied")
	}
	if retryAfter <= 0 || retryAfter > 100*time.Millisecond {
		t.Errorf("retryAfter = %v, want (0, 100ms] at 10 rps", retryAfter)
	}

	now = now.Add(100 * time.Millisecond)
	if ok, _, _ = l.Take("k", limits, 1); !ok {
		t.Error("take after refill interval should succeed")
	}
}

func TestLocalBurstCap(t *testing.T) {
	now := time.Now()
	l := NewLocal()
	l.now = func() time.Time { return now }

	limits := Limits{RPS: 100, Burst: 3}
	l.Take("k", limits, 1)

	// A long idle period must not accumulate beyond the burst.
	now = now.Add(time.Minute)
	granted := 0
	for i := 0; i < 10; i++ {
		if ok, _, _ := l.Take("k", limits, 1); ok {
			granted++
		}
	}
	if granted != 3 {
		t.Errorf("granted %d permits after idle, want burst=3", granted)
	}
}

type fakeEntry struct {
	value    []byte
	revision uint64
}

func (e *fakeEntry) Bucket() string             { return "test" }
func (e *fakeEntry) Key() string                { return "k" }
func (e *fakeEntry) Value() []byte              { return e.value }
func (e *fakeEntry) Revision() uint64           { return e.revision }
func (e *fakeEntry) Created() time.Time         { return time.Time{} }
func (e *fakeEntry) Delta() uint64              { return 0 }
func (e *fakeEntry) Operation() nats.KeyValueOp { return nats.KeyValuePut }

type fakeKV struct {
	entries  map[string]*fakeEntry
	getErr   error
	conflict int // fail this many Updates with a revision error
}

func newFakeKV() *fakeKV { return &fakeKV{entries: map[string]*fakeEntry{}} }

func (f *fakeKV) Get(key string) (nats.KeyValueEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	return e, nil
}

func (f *fakeKV) Create(key string, value []byte) (uint64, error) {
	if _, ok := f.entries[key]; ok {
		return 0, nats.ErrKeyExists
	}
	f.entries[key] = &fakeEntry{value: value, revision: 1}
	return 1, nil
}

func (f *fakeKV) Update(key string, value []byte, last uint64) (uint64, error) {
	if f.conflict > 0 {
		f.conflict--
		return 0, errors.New("nats: wrong last sequence")
	}
	e := f.entries[key]
	if e.revision != last {
		return 0, errors.New("nats: wrong last sequence")
	}
	e.value = value
	e.revision++
	return e.revision, nil
}

func TestRemoteClaim(t *testing.T) {
	kv := newFakeKV()
	r := NewRemote(kv)
	now := time.Now()
	r.now = func() time.Time { return now }

	limits := Limits{RPS: 1, Burst: 10}

	claimed, err := r.Claim("k", limits, 4)
	if err != nil || claimed != 4 {
		t.Fatalf("initial claim = %v, %v; want 4 tokens", claimed, err)
	}

	claimed, err = r.Claim("k", limits, 10)
	if err != nil || claimed != 6 {
		t.Fatalf("second claim = %v, %v; want remaining 6 tokens", claimed, err)
	}

	claimed, err = r.Claim("k", limits, 1)
	if err != nil || claimed != 0 {
		t.Fatalf("claim on empty bucket = %v, %v; want 0", claimed, err)
	}

	// Refill over time.
	now = now.Add(3 * time.Second)
	claimed, err = r.Claim("k", limits, 10)
	if err != nil || claimed != 3 {
		t.Fatalf("claim after refill = %v, %v; want 3", claimed, err)
	}
}

func TestRemoteClaimRetriesCAS(t *testing.T) {
	kv := newFakeKV()
	r := NewRemote(kv)

	limits := Limits{RPS: 1, Burst: 10}
	if _, err := r.Claim("k", limits, 1); err != nil {
		t.Fatal(err)
	}

	kv.conflict = 2 // two lost races, third attempt wins
	claimed, err := r.Claim("k", limits, 1)
	if err != nil || claimed != 1 {
		t.Errorf("claim with contention = %v, %v; want success on retry", claimed, err)
	}

	kv.conflict = casAttempts
	if _, err := r.Claim("k", limits, 1); !errors.Is(err, errContention) {
		t.Errorf("claim under persistent contention = %v, want errContention", err)
	}
}

func TestLimiterNeverBlocks(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	table := NewTable(Limits{RPS: 10, Burst: 1}, nil)
	l := NewLimiter(table, nil, metrics)

	ok, _ := l.Acquire(context.Background(), "acme", "slack", 1)
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	denied := 0
	var lastRetry time.Duration
	for i := 0; i < 4; i++ {
		ok, retry := l.Acquire(context.Background(), "acme", "slack", 1)
		if !ok {
			denied++
			lastRetry = retry
		}
	}
	if denied == 0 {
		t.Fatal("burst=1 should deny immediate re-acquires")
	}
	if lastRetry <= 0 || lastRetry > 400*time.Millisecond {
		t.Errorf("retryAfter = %v, want (0, 400ms] at 10 rps", lastRetry)
	}
}

func TestLimiterRemoteFallback(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	kv := newFakeKV()
	kv.getErr = errors.New("kv offline")
	table := NewTable(Limits{RPS: 10, Burst: 2}, nil)
	l := NewLimiter(table, NewRemote(kv), metrics)

	// Remote failures must not deny permits the local bucket holds.
	for i := 0; i < 2; i++ {
		if ok, _ := l.Acquire(context.Background(), "acme", "slack", 1); !ok {
			t.Fatalf("acquire %d should succeed from local bucket", i)
		}
	}
}
