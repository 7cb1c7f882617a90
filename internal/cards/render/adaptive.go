package render

import (
	"encoding/json"
	"fmt"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const (
	adaptiveSchema       = "http://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveVersion      = "1.6"
	adaptivePayloadLimit = 25 * 1024
)

// adaptiveFromIR builds the full Adaptive Card payload used by the
// premium-tier renderers. When the IR carries a verbatim adaptive
// payload it is passed through untouched.
func adaptiveFromIR(ir *cards.IR, policy *URLPolicy, m *metrics, warnings *[]string) map[string]any {
	if len(ir.Meta.AdaptivePayload) > 0 {
		var card map[string]any
		if err := json.Unmarshal(ir.Meta.AdaptivePayload, &card); err == nil {
			return card
		}
	}

	var body []map[string]any
	if ir.Head.Title != "" {
		body = append(body, map[string]any{
			"type":   "TextBlock",
			"text":   ir.Head.Title,
			"weight": "Bolder",
			"wrap":   true,
		})
	}

	sawText := false
	inputIdx := 0
	var elements []map[string]any
	for _, el := range ir.Elements {
		switch el.Type {
		case cards.ElementText:
			sawText = true
			elements = append(elements, map[string]any{
				"type":     "TextBlock",
				"text":     el.Text,
				"wrap":     true,
				"isSubtle": !el.Markdown,
			})
		case cards.ElementImage:
			img := map[string]any{"type": "Image", "url": el.URL}
			if el.Alt != "" {
				img["altText"] = el.Alt
			}
			elements = append(elements, img)
		case cards.ElementFactSet:
			facts := make([]map[string]any, 0, len(el.Facts))
			for _, f := range el.Facts {
				facts = append(facts, map[string]any{"title": f.Label, "value": f.Value})
			}
			elements = append(elements, map[string]any{"type": "FactSet", "facts": facts})
		case cards.ElementInput:
			inputIdx++
			elements = append(elements, adaptiveInput(el, inputIdx))
		}
	}

	if ir.Head.Text != "" && !sawText {
		body = append(body, map[string]any{"type": "TextBlock", "text": ir.Head.Text, "wrap": true})
	}
	body = append(body, elements...)

	if ir.Head.Footer != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     ir.Head.Footer,
			"spacing":  "Small",
			"isSubtle": true,
			"size":     "Small",
			"wrap":     true,
		})
	}

	var actions []map[string]any
	for _, a := range ir.Actions {
		switch a.Type {
		case cards.ActionOpenURL:
			resolved, ok := resolveURL(&ir.Meta, policy, a.URL, m, warnings)
			if !ok {
				continue
			}
			actions = append(actions, map[string]any{"type": "Action.OpenUrl", "title": a.Title, "url": resolved})
		case cards.ActionPostback:
			actions = append(actions, map[string]any{"type": "Action.Submit", "title": a.Title, "data": a.Data})
		}
	}

	card := map[string]any{
		"$schema": adaptiveSchema,
		"type":    "AdaptiveCard",
		"version": adaptiveVersion,
		"body":    body,
	}
	if len(actions) > 0 {
		card["actions"] = actions
	}
	return enforcePayloadLimit(card, m, warnings)
}

func adaptiveInput(el cards.Element, idx int) map[string]any {
	id := el.ID
	if id == "" {
		id = fmt.Sprintf("input_%d", idx)
	}
	if el.Kind == cards.InputChoiceKind && len(el.Choices) > 0 {
		choices := make([]map[string]any, 0, len(el.Choices))
		for _, c := range el.Choices {
			choices = append(choices, map[string]any{"title": c.Title, "value": c.Value})
		}
		input := map[string]any{
			"type":    "Input.ChoiceSet",
			"id":      id,
			"style":   "compact",
			"choices": choices,
		}
		if el.Label != "" {
			input["label"] = el.Label
		}
		return input
	}
	input := map[string]any{
		"type":       "Input.Text",
		"id":         id,
		"isRequired": el.Required,
	}
	if el.Label != "" {
		input["label"] = el.Label
	}
	return input
}

// enforcePayloadLimit shrinks the card until it serializes under the
// platform attachment cap, dropping actions first, then body trailing
// elements.
func enforcePayloadLimit(card map[string]any, m *metrics, warnings *[]string) map[string]any {
	warned := false
	warn := func() {
		if !warned {
			warned = true
			m.limitExceeded = true
			*warnings = append(*warnings, "adaptive.payload_truncated")
		}
	}
	for len(mustJSON(card)) > adaptivePayloadLimit {
		if actions, ok := card["actions"].([]map[string]any); ok && len(actions) > 0 {
			warn()
			actions = actions[:len(actions)-1]
			if len(actions) == 0 {
				delete(card, "actions")
			} else {
				card["actions"] = actions
			}
			continue
		}
		body, ok := card["body"].([]map[string]any)
		if !ok || len(body) == 0 {
			break
		}
		warn()
		card["body"] = body[:len(body)-1]
	}
	return card
}

// Teams renders the IR as a premium Adaptive Card attachment.
type Teams struct {
	Policy *URLPolicy
}

func (Teams) Platform() core.Platform { return core.PlatformTeams }
func (Teams) TargetTier() cards.Tier  { return cards.TierPremium }

func (r Teams) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics
	card := adaptiveFromIR(ir, r.Policy, &m, &out.Warnings)
	out.Payload = mustJSON(map[string]any{
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content":     card,
		}},
	})
	m.fill(&out)
	return out
}

// WebChat renders the IR for the Bot Framework web chat channel. It
// shares the Adaptive Card path with Teams and additionally knows the
// native OAuth card.
type WebChat struct {
	Policy *URLPolicy
}

func (WebChat) Platform() core.Platform { return core.PlatformWebChat }
func (WebChat) TargetTier() cards.Tier  { return cards.TierPremium }

func (r WebChat) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics
	card := adaptiveFromIR(ir, r.Policy, &m, &out.Warnings)
	out.Payload = mustJSON(map[string]any{
		"type": "message",
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content":     card,
		}},
	})
	m.fill(&out)
	return out
}

// RenderAuth emits a Bot Framework OAuth card. It requires the broker
// connection name; without it the engine falls back to an open-URL
// card.
func (r WebChat) RenderAuth(spec *cards.AuthSpec) (cards.RenderOutput, bool) {
	if spec.ConnectionName == "" {
		return cards.RenderOutput{}, false
	}
	buttonValue := spec.StartURL
	if buttonValue == "" {
		buttonValue = spec.Fallback.URL
	}
	var out cards.RenderOutput
	out.Payload = mustJSON(map[string]any{
		"type": "message",
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.oauth",
			"content": map[string]any{
				"text":           "Sign in with " + spec.Provider.DisplayName(),
				"connectionName": spec.ConnectionName,
				"buttons": []map[string]any{{
					"type":  "signin",
					"title": spec.Fallback.Title,
					"value": buttonValue,
				}},
			},
		}},
	})
	return out, true
}
