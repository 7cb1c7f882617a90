package ingress

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const (
	defaultHMACHeader = "x-signature"
	webexSigHeader    = "X-Webex-Signature"
)

// VerifyConfig holds the webhook authentication material. Empty
// fields disable the corresponding check.
type VerifyConfig struct {
	HMACSecret  string
	HMACHeader  string
	BearerToken string
}

func (c VerifyConfig) enabled() bool {
	return c.HMACSecret != "" || c.BearerToken != ""
}

// Verify authenticates webhook deliveries before any parsing. The
// body is buffered so downstream handlers can re-read it.
func Verify(cfg VerifyConfig) func(http.Handler) http.Handler {
	header := cfg.HMACHeader
	if header == "" {
		header = defaultHMACHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.enabled() || r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, r, &core.DomainError{Code: core.ErrorCodeValidation, Message: "unreadable body", Err: err})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyRequest(cfg, header, r, body) {
				writeError(w, r, &core.DomainError{Code: core.ErrorCodeAuthentication, Message: "signature verification failed"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyRequest(cfg VerifyConfig, header string, r *http.Request, body []byte) bool {
	if cfg.HMACSecret != "" {
		if sig := r.Header.Get(webexSigHeader); sig != "" {
			return verifyWebex(cfg.HMACSecret, sig, body)
		}
		if sig := r.Header.Get(header); sig != "" {
			return verifyHMAC(cfg.HMACSecret, sig, body)
		}
	}
	if cfg.BearerToken != "" {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != auth {
			return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.BearerToken)) == 1
		}
	}
	return false
}

// verifyHMAC checks the standard scheme: base64 of HMAC-SHA256 over
// the raw body.
func verifyHMAC(secret, sig string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

// verifyWebex checks Webex's hex digests, either sha1= or sha256=
// prefixed, with bare hex treated as SHA-1 for older webhooks.
func verifyWebex(secret, sig string, body []byte) bool {
	var sum []byte
	switch {
	case strings.HasPrefix(sig, "sha256="):
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		sum = mac.Sum(nil)
		sig = strings.TrimPrefix(sig, "sha256=")
	default:
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(body)
		sum = mac.Sum(nil)
		sig = strings.TrimPrefix(sig, "sha1=")
	}
	return hmac.Equal([]byte(sig), []byte(hex.EncodeToString(sum)))
}
