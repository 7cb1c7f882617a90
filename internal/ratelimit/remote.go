package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// casAttempts bounds the optimistic-CAS loop; under heavy contention
// the caller falls back to its local bucket.
const casAttempts = 3

// errContention is returned when every CAS attempt lost the race.
var errContention = errors.New("ratelimit: cas contention")

// KV is the subset of the JetStream key-value API the remote tier
// needs.
type KV interface {
	Get(key string) (nats.KeyValueEntry, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
}

// state is the shared bucket value stored per key.
type state struct {
	Tokens float64 `json:"tokens"`
	Last   int64   `json:"last"` // unix nanos of the last refill
}

// Remote claims tokens from the shared KV bucket so that all
// processes serving a key share one global budget.
type Remote struct {
	kv  KV
	now func() time.Time
}

func NewRemote(kv KV) *Remote {
	return &Remote{kv: kv, now: time.Now}
}

// Claim attempts to remove n tokens from the shared bucket for key.
// It reports how many tokens were actually claimed (zero when the
// bucket is empty). CAS conflicts are retried a bounded number of
// times; persistent contention or transport failure is returned as an
// error so the caller can fall back to local-only limiting.
func (r *Remote) Claim(key string, limits Limits, n float64) (float64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := r.kv.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			claimed := min(n, float64(limits.Burst))
			st := state{Tokens: float64(limits.Burst) - claimed, Last: r.now().UnixNano()}
			if _, err := r.kv.Create(key, mustMarshal(st)); err != nil {
				if errors.Is(err, nats.ErrKeyExists) {
					continue // lost the race, re-read
				}
				return 0, fmt.Errorf("ratelimit kv create: %w", err)
			}
			return claimed, nil
		}
		if err != nil {
			return 0, fmt.Errorf("ratelimit kv get: %w", err)
		}

		var st state
		if err := json.Unmarshal(entry.Value(), &st); err != nil {
			return 0, fmt.Errorf("ratelimit kv decode: %w", err)
		}

		now := r.now()
		elapsed := time.Duration(now.UnixNano() - st.Last).Seconds()
		if elapsed > 0 {
			st.Tokens += elapsed * limits.RPS
			if st.Tokens > float64(limits.Burst) {
				st.Tokens = float64(limits.Burst)
			}
			st.Last = now.UnixNano()
		}

		claimed := min(n, st.Tokens)
		if claimed <= 0 {
			return 0, nil
		}
		st.Tokens -= claimed

		if _, err := r.kv.Update(key, mustMarshal(st), entry.Revision()); err != nil {
			continue // revision moved, re-read
		}
		return claimed, nil
	}
	return 0, errContention
}

func mustMarshal(st state) []byte {
	b, _ := json.Marshal(st)
	return b
}
