package core

// TenantCtx carries the tenant scope and correlation identifiers for
// a single conversational exchange. It is created at ingress and
// propagated unchanged through the bus; the With* builders return
// modified copies so a shared value is never mutated.
type TenantCtx struct {
	Env           string `json:"env"`
	Tenant        string `json:"tenant"`
	Team          string `json:"team,omitempty"`
	User          string `json:"user,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
}

// Validate checks that the mandatory identifiers are present and free
// of control characters.
func (c TenantCtx) Validate() error {
	if c.Env == "" {
		return &ErrInvalidInput{Field: "env", Message: "must not be empty"}
	}
	if c.Tenant == "" {
		return &ErrInvalidInput{Field: "tenant", Message: "must not be empty"}
	}
	for _, f := range []struct{ name, v string }{
		{"env", c.Env}, {"tenant", c.Tenant}, {"team", c.Team}, {"user", c.User},
	} {
		if hasControl(f.v) {
			return &ErrInvalidInput{Field: f.name, Message: "must not contain control characters"}
		}
	}
	return nil
}

// WithTeam returns a copy with the team set.
func (c TenantCtx) WithTeam(team string) TenantCtx {
	c.Team = team
	return c
}

// WithAttempt returns a copy with the attempt counter set.
func (c TenantCtx) WithAttempt(n int) TenantCtx {
	c.Attempt = n
	return c
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
