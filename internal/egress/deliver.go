package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/collab"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// Result is the platform API response a delivery attempt produced.
type Result struct {
	Status int
	Header http.Header
}

// Deliverer sends one translated payload to a platform API. A nil
// error with a non-2xx status is a protocol-level failure; a non-nil
// error is a transport failure.
type Deliverer interface {
	Deliver(ctx context.Context, msg *core.OutMessage, payload json.RawMessage) (Result, error)
}

// HTTPDeliverer posts payloads to per-platform endpoints with a
// bearer token from the secrets collaborator.
type HTTPDeliverer struct {
	Endpoints map[core.Platform]string
	Secrets   collab.Secrets
	Client    *http.Client
}

func NewHTTPDeliverer(endpoints map[core.Platform]string, secrets collab.Secrets, timeout time.Duration) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDeliverer{
		Endpoints: endpoints,
		Secrets:   secrets,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, msg *core.OutMessage, payload json.RawMessage) (Result, error) {
	endpoint, ok := d.Endpoints[msg.Platform]
	if !ok {
		return Result{}, &core.DomainError{
			Code:    core.ErrorCodeUnsupported,
			Message: "no delivery endpoint for platform " + string(msg.Platform),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Secrets != nil {
		token, err := d.Secrets.Get(ctx, msg.Tenant, tokenKey(msg.Platform))
		if err != nil {
			return Result{}, fmt.Errorf("resolve %s token: %w", msg.Platform, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return Result{Status: resp.StatusCode, Header: resp.Header}, nil
}

func tokenKey(platform core.Platform) string {
	return string(platform) + "-token"
}

// ParseEndpoints decodes a JSON map of platform name to delivery URL,
// as supplied by the egress.endpoints config key.
func ParseEndpoints(s string) (map[core.Platform]string, error) {
	out := make(map[core.Platform]string)
	if s == "" {
		return out, nil
	}
	raw := make(map[string]string)
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("parse endpoints: %w", err)
	}
	for name, url := range raw {
		p := core.Platform(name)
		if !p.Valid() {
			return nil, fmt.Errorf("parse endpoints: unknown platform %q", name)
		}
		out[p] = url
	}
	return out, nil
}
