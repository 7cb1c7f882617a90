// Package render implements the per-platform MessageCard renderers.
// Each renderer is a pure translation from the neutral IR to one
// platform's wire payload; feature downgrades are reported as
// order-preserving warnings.
package render

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
)

// Per-platform text limits.
const (
	slackTextLimit    = 3000
	webexTextLimit    = 3000
	telegramTextLimit = 4000
	whatsappTextLimit = 4000
)

// maxStateBytes caps the app-link state payload embedded in signed
// deep links.
const maxStateBytes = 2048

// URLPolicy restricts which action URLs renderers may emit. An empty
// allow list permits everything.
type URLPolicy struct {
	AllowPrefixes []string
}

func (p *URLPolicy) allowed(u string) bool {
	if p == nil || len(p.AllowPrefixes) == 0 {
		return true
	}
	for _, prefix := range p.AllowPrefixes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// metrics accumulates the render-side counters while a card is
// translated.
type metrics struct {
	sanitized     int
	urlBlocked    int
	limitExceeded bool
}

func (m *metrics) fill(out *cards.RenderOutput) {
	out.SanitizedCount = m.sanitized
	out.URLBlockedCount = m.urlBlocked
	out.LimitExceeded = m.limitExceeded
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// sanitizeForTier strips HTML tags and line separators from text
// below the premium tier.
func sanitizeForTier(text string, tier cards.Tier, m *metrics) string {
	if tier == cards.TierPremium {
		return text
	}
	cleaned := tagPattern.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "\u2028", " ")
	cleaned = strings.ReplaceAll(cleaned, "\u2029", " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != text {
		m.sanitized++
	}
	return cleaned
}

// enforceTextLimit truncates text at limit runes, recording the
// warning once per call site.
func enforceTextLimit(text string, limit int, warning string, m *metrics, warnings *[]string) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	m.limitExceeded = true
	*warnings = append(*warnings, warning)
	return string(runes[:limit])
}

// resolveURL applies app-link re-signing and the URL policy. Blocked
// URLs are dropped with the "url_blocked" warning.
func resolveURL(meta *cards.Meta, policy *URLPolicy, target string, m *metrics, warnings *[]string) (string, bool) {
	resolved := target
	if meta.AppLink != nil {
		if signed, ok := buildSignedLink(meta.AppLink, target); ok {
			resolved = signed
		}
	}
	if !policy.allowed(resolved) {
		m.urlBlocked++
		*warnings = append(*warnings, "url_blocked")
		return "", false
	}
	return resolved, true
}

// buildSignedLink rewrites target as a deep link through the app-link
// base URL, with an HMAC signature and optional signed state token.
func buildSignedLink(link *cards.AppLink, target string) (string, bool) {
	base := strings.TrimRight(link.BaseURL, "&?")
	if base == "" {
		return "", false
	}
	base = appendQuery(base, "target", url.QueryEscape(target))
	if link.Secret != "" {
		base = appendQuery(base, "sig", signTarget(link.Secret, target))
	}
	if link.JWT != nil {
		if token, err := encodeStateJWT(link, target); err == nil && token != "" {
			base = appendQuery(base, "state_jwt", token)
		}
	}
	return base, true
}

func signTarget(secret, target string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(target))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func appendQuery(base, key, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + key + "=" + value
}

func encodeStateJWT(link *cards.AppLink, target string) (string, error) {
	cfg := link.JWT
	ttl := cfg.TTLSeconds
	if ttl <= 0 {
		ttl = 900
	}
	now := time.Now().Unix()

	claims := jwt.MapClaims{
		"iat":    now,
		"exp":    now + ttl,
		"target": target,
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if link.Scope != "" {
		claims["scope"] = link.Scope
	}
	if link.Tenant != "" {
		claims["tenant"] = link.Tenant
	}
	if state, ok := normalizeState(link.State); ok {
		claims["state"] = state
	}

	var method jwt.SigningMethod
	switch strings.ToUpper(cfg.Algorithm) {
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		method = jwt.SigningMethodHS256
	}
	return jwt.NewWithClaims(method, claims).SignedString([]byte(cfg.Secret))
}

// normalizeState accepts only object or array state payloads within
// the size cap.
func normalizeState(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 || len(raw) > maxStateBytes {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// truncate shortens a string to limit runes with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Payload maps are built from marshalable values only.
		panic(fmt.Sprintf("render payload marshal: %v", err))
	}
	return b
}
