// Package collab holds the thin clients for the services the gateway
// cooperates with: the flow runner, the secrets service, the OAuth
// broker, and the session directory.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const defaultTimeout = 10 * time.Second

// Runner hands inbound envelopes to the flow runner and collects the
// outbound messages it produced.
type Runner interface {
	Invoke(ctx context.Context, env *core.MessageEnvelope) ([]core.OutMessage, error)
}

// Secrets resolves per-tenant credentials, such as platform API
// tokens.
type Secrets interface {
	Get(ctx context.Context, tenant, key string) (string, error)
	Put(ctx context.Context, tenant, key, value string) error
}

// StartAuthRequest asks the OAuth broker for a hosted sign-in URL.
type StartAuthRequest struct {
	Tenant   string   `json:"tenant"`
	Provider string   `json:"provider"`
	Scopes   []string `json:"scopes,omitempty"`
	Resource string   `json:"resource,omitempty"`
	Prompt   string   `json:"prompt,omitempty"`
}

// StartAuthResponse carries the minted sign-in URL and, for Bot
// Framework channels, the broker connection name.
type StartAuthResponse struct {
	URL            string `json:"url"`
	ConnectionName string `json:"connection_name,omitempty"`
}

// OAuth brokers hosted sign-in flows.
type OAuth interface {
	Start(ctx context.Context, req StartAuthRequest) (StartAuthResponse, error)
}

// Sessions looks up conversation sessions by scope key.
type Sessions interface {
	FindByScope(ctx context.Context, scope string) (string, error)
}

// client is the shared JSON-over-HTTP base for the collaborator
// implementations.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &core.DomainError{Code: core.ErrorCodeTransient, Message: "collaborator unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &core.DomainError{Code: core.ErrorCodePermanent, Message: fmt.Sprintf("%s: not found", req.URL.Path)}
	}
	if resp.StatusCode >= 500 {
		return &core.DomainError{Code: core.ErrorCodeTransient, Message: fmt.Sprintf("%s: status %d", req.URL.Path, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &core.DomainError{Code: core.ErrorCodePermanent, Message: fmt.Sprintf("%s: status %d", req.URL.Path, resp.StatusCode)}
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
