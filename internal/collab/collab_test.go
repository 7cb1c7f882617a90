package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

func TestRunnerInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/invoke" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var env core.MessageEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatal(err)
		}
		if env.Tenant != "acme" {
			t.Errorf("tenant = %q", env.Tenant)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"tenant": "acme", "platform": "slack", "chat_id": "C1", "kind": "text", "text": "hi"}},
		})
	}))
	defer srv.Close()

	out, err := NewRunner(srv.URL, time.Second).Invoke(context.Background(), &core.MessageEnvelope{Tenant: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Text != "hi" {
		t.Errorf("messages = %+v", out)
	}
}

func TestSecretsRoundtrip(t *testing.T) {
	store := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Value string `json:"value"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			store[r.URL.Path] = body.Value
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			v, ok := store[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"value": v})
		}
	}))
	defer srv.Close()

	s := NewSecrets(srv.URL, time.Second)
	ctx := context.Background()

	if err := s.Put(ctx, "acme", "slack-token", "xoxb-1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "acme", "slack-token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "xoxb-1" {
		t.Errorf("value = %q", got)
	}

	_, err = s.Get(ctx, "acme", "missing")
	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != core.ErrorCodePermanent {
		t.Errorf("missing secret error = %v", err)
	}
}

func TestOAuthStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req StartAuthRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Provider != "microsoft" {
			t.Errorf("provider = %q", req.Provider)
		}
		json.NewEncoder(w).Encode(StartAuthResponse{URL: "https://login.example.com/s", ConnectionName: "graph"})
	}))
	defer srv.Close()

	resp, err := NewOAuth(srv.URL, time.Second).Start(context.Background(), StartAuthRequest{Tenant: "acme", Provider: "microsoft"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.URL != "https://login.example.com/s" || resp.ConnectionName != "graph" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSessions(srv.URL, time.Second).FindByScope(context.Background(), "tenant:acme")
	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != core.ErrorCodeTransient {
		t.Errorf("5xx error = %v, want transient DomainError", err)
	}
}
