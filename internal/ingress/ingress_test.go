package ingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/idempotency"
	"github.com/greentic-ai/greentic-messaging/internal/ratelimit"
)

type fakeBus struct {
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (b *fakeBus) PublishRetry(_ context.Context, subject string, data []byte, _ int) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, publishedMsg{subject, data})
	return nil
}

func newTestHandler(t *testing.T, opts Options) (*Handler, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	guard := idempotency.NewGuard(idempotency.NewMemory(), time.Hour, nil)
	if opts.Env == "" {
		opts.Env = "dev"
	}
	return NewHandler(opts, bus, guard, nil), bus
}

func post(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTelegramAcceptedAndPublished(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	router := h.Routes()

	body := `{"update_id": 77, "message": {"message_id": 5, "chat": {"id": 42}, "from": {"id": 9}, "text": "hello", "date": 1700000000}}`
	rec := post(t, router, "/ingress/telegram/acme", body, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK        bool   `json:"ok"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.RequestID == "" {
		t.Errorf("response = %+v", resp)
	}
	if rec.Header().Get("x-request-id") != resp.RequestID {
		t.Error("request id header not echoed")
	}

	if len(bus.published) != 1 {
		t.Fatalf("published %d messages", len(bus.published))
	}
	if got, want := bus.published[0].subject, "greentic.messaging.ingress.dev.acme.default.telegram"; got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}
	var env core.MessageEnvelope
	if err := json.Unmarshal(bus.published[0].data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Tenant != "acme" || env.Platform != core.PlatformTelegram || env.ChatID != "42" || env.MsgID != "tg:77" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Text != "hello" {
		t.Errorf("text = %q", env.Text)
	}
}

func TestRequestIDIgnoresCallerHeader(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	router := h.Routes()

	body := `{"chat_id": "c1", "text": "hi"}`
	rec := post(t, router, "/ingress/webchat/acme", body, map[string]string{"x-request-id": "attacker-chosen"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	id := rec.Header().Get("x-request-id")
	if id == "" || id == "attacker-chosen" {
		t.Errorf("request id = %q, want a freshly assigned one", id)
	}
	var resp struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != id {
		t.Errorf("body id %q != header id %q", resp.RequestID, id)
	}
}

func TestDuplicateSuppressed(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	router := h.Routes()

	body := `{"update_id": 1, "message": {"chat": {"id": 1}, "from": {"id": 1}, "text": "once"}}`
	for i := 0; i < 2; i++ {
		rec := post(t, router, "/ingress/telegram/acme", body, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	if len(bus.published) != 1 {
		t.Errorf("published %d messages, want 1", len(bus.published))
	}
}

func TestHMACVerification(t *testing.T) {
	h, bus := newTestHandler(t, Options{Verify: VerifyConfig{HMACSecret: "topsecret"}})
	router := h.Routes()
	body := `{"chat_id": "c1", "user_id": "u1", "text": "hi"}`

	rec := post(t, router, "/ingress/webchat/acme", body, map[string]string{"x-signature": "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", rec.Code)
	}
	if len(bus.published) != 0 {
		t.Fatal("rejected request must not publish")
	}

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	rec = post(t, router, "/ingress/webchat/acme", body, map[string]string{"x-signature": sig})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("valid signature status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(bus.published) != 1 {
		t.Error("verified request should publish")
	}
}

func TestBearerVerification(t *testing.T) {
	h, _ := newTestHandler(t, Options{Verify: VerifyConfig{BearerToken: "tok-1"}})
	router := h.Routes()
	body := `{"chat_id": "c1", "text": "hi"}`

	rec := post(t, router, "/ingress/webchat/acme", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", rec.Code)
	}

	rec = post(t, router, "/ingress/webchat/acme", body, map[string]string{"Authorization": "Bearer tok-1"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("valid token status = %d", rec.Code)
	}
}

func TestIPRateLimit(t *testing.T) {
	h, _ := newTestHandler(t, Options{
		IPLimiter: NewIPLimiter(ratelimit.Limits{RPS: 1, Burst: 2}),
	})
	router := h.Routes()
	body := `{"chat_id": "c1", "text": "hi"}`
	headers := map[string]string{"x-forwarded-for": "203.0.113.9, 10.0.0.1"}

	for i := 0; i < 2; i++ {
		if rec := post(t, router, "/ingress/webchat/acme", body, headers); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := post(t, router, "/ingress/webchat/acme", body, headers)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("limited status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
		t.Errorf("error body = %s", rec.Body.String())
	}

	// A different source address is unaffected.
	rec = post(t, router, "/ingress/webchat/acme", body, map[string]string{"x-forwarded-for": "198.51.100.7"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("other ip status = %d", rec.Code)
	}
}

func TestSlackURLVerification(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	router := h.Routes()

	rec := post(t, router, "/ingress/slack/acme", `{"type": "url_verification", "challenge": "ch-123"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["challenge"] != "ch-123" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(bus.published) != 0 {
		t.Error("challenge must not publish")
	}
}

func TestSlackBotEchoSkipped(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	router := h.Routes()

	body := `{"type": "event_callback", "event": {"type": "message", "bot_id": "B1", "channel": "C1", "ts": "1.2", "text": "echo"}}`
	rec := post(t, router, "/ingress/slack/acme", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(bus.published) != 0 {
		t.Error("bot event must not publish")
	}
}

func TestWhatsAppHubChallenge(t *testing.T) {
	h, _ := newTestHandler(t, Options{Verify: VerifyConfig{BearerToken: "verify-me"}})
	router := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/ingress/whatsapp/acme?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Errorf("challenge = %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/ingress/whatsapp/acme?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
}

func TestWhatsAppStatusOnlySkipped(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	router := h.Routes()

	rec := post(t, router, "/ingress/whatsapp/acme", `{"entry": [{"changes": [{"value": {"statuses": [{"id": "s1"}]}}]}]}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(bus.published) != 0 {
		t.Error("status-only payload must not publish")
	}
}

func TestMalformedJSON(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	router := h.Routes()

	rec := post(t, router, "/ingress/telegram/acme", `{nope`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPublishFailure(t *testing.T) {
	h, bus := newTestHandler(t, Options{})
	bus.err = context.DeadlineExceeded
	router := h.Routes()

	rec := post(t, router, "/ingress/webchat/acme", `{"chat_id": "c1", "text": "hi"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
