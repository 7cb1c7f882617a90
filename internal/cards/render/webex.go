package render

import (
	"fmt"
	"strings"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// Webex renders the IR as an Adaptive Card 1.4 attachment. Fact sets
// are flattened to text and inputs are dropped, since the Webex card
// runtime supports neither reliably.
type Webex struct {
	Policy *URLPolicy
}

func (Webex) Platform() core.Platform { return core.PlatformWebex }
func (Webex) TargetTier() cards.Tier  { return cards.TierAdvanced }

func (r Webex) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics
	sanitize := func(s string) string { return sanitizeForTier(s, ir.Tier, &m) }
	limit := func(s string) string {
		return enforceTextLimit(s, webexTextLimit, "webex.text_truncated", &m, &out.Warnings)
	}

	var body []map[string]any
	if t := sanitize(ir.Head.Title); t != "" {
		body = append(body, map[string]any{
			"type":   "TextBlock",
			"text":   limit(t),
			"weight": "Bolder",
			"size":   "Medium",
			"wrap":   true,
		})
	}
	if h := sanitize(ir.Head.Text); h != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     limit(h),
			"isSubtle": true,
			"wrap":     true,
		})
	}

	for _, el := range ir.Elements {
		switch el.Type {
		case cards.ElementText:
			if text := sanitize(el.Text); text != "" {
				body = append(body, map[string]any{"type": "TextBlock", "text": limit(text), "wrap": true})
			}
		case cards.ElementImage:
			img := map[string]any{"type": "Image", "url": el.URL}
			if el.Alt != "" {
				img["altText"] = el.Alt
			}
			body = append(body, img)
		case cards.ElementFactSet:
			lines := make([]string, 0, len(el.Facts))
			for _, f := range el.Facts {
				lines = append(lines, fmt.Sprintf("*%s*: %s", sanitize(f.Label), sanitize(f.Value)))
			}
			out.Warnings = append(out.Warnings, "webex.factset_downgraded")
			body = append(body, map[string]any{
				"type": "TextBlock",
				"text": limit(strings.Join(lines, "\n")),
				"wrap": true,
			})
		case cards.ElementInput:
			out.Warnings = append(out.Warnings, "webex.inputs_not_supported")
		}
	}

	if f := sanitize(ir.Head.Footer); f != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     limit(f),
			"isSubtle": true,
			"size":     "Small",
			"wrap":     true,
		})
	}

	var actions []map[string]any
	for _, a := range ir.Actions {
		switch a.Type {
		case cards.ActionOpenURL:
			resolved, ok := resolveURL(&ir.Meta, r.Policy, a.URL, &m, &out.Warnings)
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
		"version": "1.4",
		"body":    body,
	}
	if len(actions) > 0 {
		card["actions"] = actions
	}

	out.Payload = mustJSON(map[string]any{
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content":     card,
		}},
	})
	m.fill(&out)
	return out
}
