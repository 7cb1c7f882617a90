package cards

import (
	"encoding/json"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// RenderOutput is the result of rendering an IR for one platform.
type RenderOutput struct {
	Payload         json.RawMessage `json:"payload"`
	UsedModal       bool            `json:"used_modal"`
	Warnings        []string        `json:"warnings,omitempty"`
	LimitExceeded   bool            `json:"limit_exceeded"`
	SanitizedCount  int             `json:"sanitized_count"`
	URLBlockedCount int             `json:"url_blocked_count"`
}

// Renderer translates the IR into one platform's wire format.
// Renderers are deterministic: the same IR always yields the same
// payload and the same warning order.
type Renderer interface {
	Platform() core.Platform
	TargetTier() Tier
	Render(ir *IR) RenderOutput
}

// AuthRenderer is implemented by renderers with a native sign-in card
// format. The engine falls back to an open-URL card when a platform's
// renderer does not implement it.
type AuthRenderer interface {
	RenderAuth(spec *AuthSpec) (RenderOutput, bool)
}

// AuthSpec is the render input for OAuth cards.
type AuthSpec struct {
	Provider       core.OauthProvider `json:"provider"`
	Scopes         []string           `json:"scopes,omitempty"`
	Resource       string             `json:"resource,omitempty"`
	Prompt         core.OauthPrompt   `json:"prompt,omitempty"`
	Metadata       json.RawMessage    `json:"metadata,omitempty"`
	StartURL       string             `json:"start_url,omitempty"`
	ConnectionName string             `json:"connection_name,omitempty"`
	Fallback       FallbackButton     `json:"fallback_button"`
}

// FallbackButton is the open-URL button used when a platform cannot
// render a native sign-in card.
type FallbackButton struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// AuthSpecFromCard derives the auth render input from an oauth card.
// The fallback button title defaults to "Sign in with <provider>".
func AuthSpecFromCard(card *core.MessageCard, oauth *core.OauthCard) *AuthSpec {
	title := card.Title
	if title == "" {
		title = "Sign in with " + oauth.Provider.DisplayName()
	}
	return &AuthSpec{
		Provider:       oauth.Provider,
		Scopes:         oauth.Scopes,
		Resource:       oauth.Resource,
		Prompt:         oauth.Prompt,
		Metadata:       oauth.Metadata,
		StartURL:       oauth.StartURL,
		ConnectionName: oauth.ConnectionName,
		Fallback:       FallbackButton{Title: title, URL: oauth.StartURL},
	}
}
