package collab

import (
	"context"
	"net/url"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// HTTPRunner posts envelopes to the flow runner's invoke endpoint.
type HTTPRunner struct {
	client
}

func NewRunner(baseURL string, timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{newClient(baseURL, timeout)}
}

func (r *HTTPRunner) Invoke(ctx context.Context, env *core.MessageEnvelope) ([]core.OutMessage, error) {
	var out struct {
		Messages []core.OutMessage `json:"messages"`
	}
	if err := r.post(ctx, "/v1/invoke", env, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// HTTPSecrets reads and writes tenant-scoped secrets.
type HTTPSecrets struct {
	client
}

func NewSecrets(baseURL string, timeout time.Duration) *HTTPSecrets {
	return &HTTPSecrets{newClient(baseURL, timeout)}
}

func (s *HTTPSecrets) Get(ctx context.Context, tenant, key string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	path := "/v1/secrets/" + url.PathEscape(tenant) + "/" + url.PathEscape(key)
	if err := s.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (s *HTTPSecrets) Put(ctx context.Context, tenant, key, value string) error {
	path := "/v1/secrets/" + url.PathEscape(tenant) + "/" + url.PathEscape(key)
	return s.post(ctx, path, map[string]string{"value": value}, nil)
}

// HTTPOAuth starts hosted sign-in flows against the OAuth broker.
type HTTPOAuth struct {
	client
}

func NewOAuth(baseURL string, timeout time.Duration) *HTTPOAuth {
	return &HTTPOAuth{newClient(baseURL, timeout)}
}

func (o *HTTPOAuth) Start(ctx context.Context, req StartAuthRequest) (StartAuthResponse, error) {
	var out StartAuthResponse
	if err := o.post(ctx, "/v1/oauth/start", req, &out); err != nil {
		return StartAuthResponse{}, err
	}
	return out, nil
}

// HTTPSessions resolves conversation sessions by scope key.
type HTTPSessions struct {
	client
}

func NewSessions(baseURL string, timeout time.Duration) *HTTPSessions {
	return &HTTPSessions{newClient(baseURL, timeout)}
}

func (s *HTTPSessions) FindByScope(ctx context.Context, scope string) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := s.get(ctx, "/v1/sessions?scope="+url.QueryEscape(scope), &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// CardBroker bridges the OAuth client to the card engine's start-URL
// hook.
type CardBroker struct {
	OAuth OAuth
}

func (b CardBroker) StartAuth(ctx context.Context, tenant string, spec *cards.AuthSpec) (string, string, error) {
	resp, err := b.OAuth.Start(ctx, StartAuthRequest{
		Tenant:   tenant,
		Provider: string(spec.Provider),
		Scopes:   spec.Scopes,
		Resource: spec.Resource,
		Prompt:   string(spec.Prompt),
	})
	if err != nil {
		return "", "", err
	}
	return resp.URL, resp.ConnectionName, nil
}
