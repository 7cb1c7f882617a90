package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageCardKind discriminates standard content cards from OAuth
// sign-in cards.
type MessageCardKind string

const (
	MessageCardStandard MessageCardKind = "standard"
	MessageCardOauth    MessageCardKind = "oauth"
)

// MessageCard is the platform-neutral card carried inside an
// OutMessage. Renderers translate it into the platform wire format on
// demand.
type MessageCard struct {
	Kind          MessageCardKind `json:"kind"`
	Title         string          `json:"title,omitempty"`
	Text          string          `json:"text,omitempty"`
	Footer        string          `json:"footer,omitempty"`
	Images        []CardImage     `json:"images,omitempty"`
	Actions       []CardAction    `json:"actions,omitempty"`
	AllowMarkdown bool            `json:"allow_markdown"`
	Adaptive      json.RawMessage `json:"adaptive,omitempty"`
	OAuth         *OauthCard      `json:"oauth,omitempty"`
}

// Validate enforces that an oauth card carries its oauth block.
func (c *MessageCard) Validate() error {
	switch c.Kind {
	case MessageCardStandard:
	case MessageCardOauth:
		if c.OAuth == nil {
			return &ErrInvalidInput{Field: "oauth", Message: "required for kind=oauth"}
		}
		if c.OAuth.Provider == "" {
			return &ErrInvalidInput{Field: "oauth.provider", Message: "must not be empty"}
		}
	default:
		return &ErrInvalidInput{Field: "kind", Message: fmt.Sprintf("unknown card kind %q", c.Kind)}
	}
	return nil
}

// CardImage is an image attachment on a card.
type CardImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// CardActionType discriminates card actions.
type CardActionType string

const (
	CardActionOpenURL  CardActionType = "open_url"
	CardActionPostback CardActionType = "postback"
)

// CardAction is a button on a card: either a link or a postback that
// round-trips Data to the flow runner.
type CardAction struct {
	Type  CardActionType `json:"type"`
	Title string         `json:"title"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// OauthProvider names the identity provider behind an OAuth card.
type OauthProvider string

const (
	OauthProviderMicrosoft OauthProvider = "microsoft"
	OauthProviderGoogle    OauthProvider = "google"
	OauthProviderGitHub    OauthProvider = "github"
	OauthProviderSlack     OauthProvider = "slack"
	OauthProviderGeneric   OauthProvider = "generic"
)

// DisplayName returns the human-readable provider name used in
// fallback button titles.
func (p OauthProvider) DisplayName() string {
	switch p {
	case OauthProviderMicrosoft:
		return "Microsoft"
	case OauthProviderGoogle:
		return "Google"
	case OauthProviderGitHub:
		return "GitHub"
	case OauthProviderSlack:
		return "Slack"
	default:
		if p == "" {
			return "your account"
		}
		return strings.ToUpper(string(p[0])) + string(p[1:])
	}
}

// OauthPrompt controls the consent behaviour requested from the
// provider.
type OauthPrompt string

const (
	OauthPromptNone    OauthPrompt = "none"
	OauthPromptConsent OauthPrompt = "consent"
	OauthPromptLogin   OauthPrompt = "login"
)

// OauthCard describes the authorization flow an oauth-kind card
// initiates. StartURL may be empty; the card engine hydrates it via
// the OAuth broker before rendering.
type OauthCard struct {
	Provider       OauthProvider   `json:"provider"`
	Scopes         []string        `json:"scopes,omitempty"`
	Resource       string          `json:"resource,omitempty"`
	Prompt         OauthPrompt     `json:"prompt,omitempty"`
	StartURL       string          `json:"start_url,omitempty"`
	ConnectionName string          `json:"connection_name,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}
