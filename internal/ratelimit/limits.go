// Package ratelimit implements the hybrid token bucket: a per-process
// bucket refilled lazily from elapsed time, topped up by token
// reservations claimed from a shared KV counter via optimistic CAS.
package ratelimit

import (
	"encoding/json"
	"fmt"
)

// Limits is the token bucket shape for one rate-limit key.
type Limits struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// DefaultLimits applies when neither the tenant override nor the
// global configuration sets a value.
var DefaultLimits = Limits{RPS: 5, Burst: 10}

func (l Limits) valid() bool { return l.RPS > 0 && l.Burst > 0 }

// Table resolves the limits for a tenant: per-tenant overrides first,
// then the configured default.
type Table struct {
	def       Limits
	overrides map[string]Limits
}

func NewTable(def Limits, overrides map[string]Limits) *Table {
	if !def.valid() {
		def = DefaultLimits
	}
	return &Table{def: def, overrides: overrides}
}

// For returns the limits applying to the given tenant.
func (t *Table) For(tenant string) Limits {
	if l, ok := t.overrides[tenant]; ok && l.valid() {
		return l
	}
	return t.def
}

// ParseOverrides decodes the per-tenant override map from its JSON
// configuration form, e.g. {"acme":{"rps":2,"burst":4}}.
func ParseOverrides(s string) (map[string]Limits, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]Limits
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("parse rate-limit overrides: %w", err)
	}
	return m, nil
}
