// Package cards holds the platform-neutral MessageCard intermediate
// representation and the engine composing the per-platform renderers.
package cards

import (
	"encoding/json"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// IR is the neutral card representation every renderer consumes. It
// is ephemeral: built from a MessageCard, rendered, discarded.
type IR struct {
	Tier     Tier      `json:"tier"`
	Head     Head      `json:"head"`
	Elements []Element `json:"elements,omitempty"`
	Actions  []Action  `json:"actions,omitempty"`
	Meta     Meta      `json:"meta"`
}

// Head is the card's framing text.
type Head struct {
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// ElementType discriminates IR elements.
type ElementType string

const (
	ElementText    ElementType = "text"
	ElementImage   ElementType = "image"
	ElementFactSet ElementType = "factset"
	ElementInput   ElementType = "input"
)

// Element is one body item. The Type field selects which of the
// remaining fields are meaningful.
type Element struct {
	Type ElementType `json:"type"`

	// text
	Text     string `json:"text,omitempty"`
	Markdown bool   `json:"markdown,omitempty"`

	// image
	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`

	// factset
	Facts []Fact `json:"facts,omitempty"`

	// input
	Label    string        `json:"label,omitempty"`
	Kind     InputKind     `json:"kind,omitempty"`
	ID       string        `json:"id,omitempty"`
	Required bool          `json:"required,omitempty"`
	Choices  []InputChoice `json:"choices,omitempty"`
}

// Fact is one label/value row of a fact set.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// InputKind discriminates input elements.
type InputKind string

const (
	InputText       InputKind = "text"
	InputChoiceKind InputKind = "choice"
)

// InputChoice is one selectable option of a choice input.
type InputChoice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// ActionType discriminates IR actions.
type ActionType string

const (
	ActionOpenURL  ActionType = "open_url"
	ActionPostback ActionType = "postback"
)

// Action is one card button.
type Action struct {
	Type  ActionType     `json:"type"`
	Title string         `json:"title"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Meta carries the cross-cutting render context.
type Meta struct {
	Capabilities    []string        `json:"capabilities,omitempty"`
	Source          string          `json:"source,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	AdaptivePayload json.RawMessage `json:"adaptive_payload,omitempty"`
	AppLink         *AppLink        `json:"app_link,omitempty"`
}

// AppLink configures deep-link re-signing for open_url actions.
type AppLink struct {
	BaseURL string          `json:"base_url"`
	Secret  string          `json:"secret,omitempty"`
	Tenant  string          `json:"tenant,omitempty"`
	Scope   string          `json:"scope,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
	JWT     *AppLinkJWT     `json:"jwt,omitempty"`
}

// AppLinkJWT configures the optional signed state token appended to
// app links.
type AppLinkJWT struct {
	Secret     string `json:"secret"`
	Algorithm  string `json:"algorithm,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// FromCard builds the IR for a plain (non-adaptive) card and derives
// its tier from the features it uses.
func FromCard(card *core.MessageCard) *IR {
	ir := &IR{
		Head: Head{Title: card.Title, Text: card.Text, Footer: card.Footer},
	}
	if card.Text != "" {
		ir.Elements = append(ir.Elements, Element{Type: ElementText, Text: card.Text, Markdown: card.AllowMarkdown})
	}
	for _, img := range card.Images {
		ir.Elements = append(ir.Elements, Element{Type: ElementImage, URL: img.URL, Alt: img.Alt})
	}
	for _, a := range card.Actions {
		switch a.Type {
		case core.CardActionOpenURL:
			ir.Actions = append(ir.Actions, Action{Type: ActionOpenURL, Title: a.Title, URL: a.URL})
		case core.CardActionPostback:
			ir.Actions = append(ir.Actions, Action{Type: ActionPostback, Title: a.Title, Data: a.Data})
		}
	}
	ir.Meta.Source = "plain"
	ir.AutoTier()
	return ir
}

// AutoTier derives the tier from the IR's features: inputs demand
// premium; images, fact sets, and postbacks demand advanced;
// everything else is basic.
func (ir *IR) AutoTier() {
	ir.Tier = ir.deriveTier()
}

func (ir *IR) deriveTier() Tier {
	for _, el := range ir.Elements {
		if el.Type == ElementInput {
			return TierPremium
		}
	}
	for _, cap := range ir.Meta.Capabilities {
		if cap == "inputs" || cap == "execute" || cap == "showcard" {
			return TierPremium
		}
	}
	for _, el := range ir.Elements {
		if el.Type == ElementImage || el.Type == ElementFactSet {
			return TierAdvanced
		}
	}
	for _, a := range ir.Actions {
		if a.Type == ActionPostback {
			return TierAdvanced
		}
	}
	return TierBasic
}

// HasInputs reports whether the IR contains any input element.
func (ir *IR) HasInputs() bool {
	for _, el := range ir.Elements {
		if el.Type == ElementInput {
			return true
		}
	}
	return false
}
