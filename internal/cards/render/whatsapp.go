package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const whatsappMaxButtons = 3

// WhatsApp renders the IR as a template body plus up to three buttons.
type WhatsApp struct {
	Policy *URLPolicy
}

func (WhatsApp) Platform() core.Platform { return core.PlatformWhatsApp }
func (WhatsApp) TargetTier() cards.Tier  { return cards.TierBasic }

func (r WhatsApp) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics
	var lines []string

	sanitize := func(s string) string { return sanitizeForTier(s, ir.Tier, &m) }

	if t := sanitize(ir.Head.Title); t != "" {
		lines = append(lines, t)
	}
	head := sanitize(ir.Head.Text)
	if head != "" {
		lines = append(lines, head)
	}

	first := true
	for _, el := range ir.Elements {
		switch el.Type {
		case cards.ElementText:
			text := sanitize(el.Text)
			if first && text == head {
				first = false
				continue
			}
			first = false
			if text != "" {
				lines = append(lines, text)
			}
		case cards.ElementImage:
			if el.URL != "" {
				lines = append(lines, el.URL)
			}
		case cards.ElementFactSet:
			for _, f := range el.Facts {
				lines = append(lines, fmt.Sprintf("• %s: %s", sanitize(f.Label), sanitize(f.Value)))
			}
		case cards.ElementInput:
			out.Warnings = append(out.Warnings, "whatsapp.inputs_not_supported")
			lines = append(lines, whatsappInputPrompt(el, sanitize))
		}
	}

	if f := sanitize(ir.Head.Footer); f != "" {
		lines = append(lines, f)
	}

	body := strings.Join(lines, "\n")
	body = enforceTextLimit(body, whatsappTextLimit, "whatsapp.body_truncated", &m, &out.Warnings)

	payload := map[string]any{
		"type": "WhatsAppTemplate",
		"body": body,
	}
	if buttons := r.buttons(ir, &m, &out.Warnings); len(buttons) > 0 {
		payload["components"] = []map[string]any{{"type": "BUTTONS", "buttons": buttons}}
	}

	out.Payload = mustJSON(payload)
	m.fill(&out)
	return out
}

func whatsappInputPrompt(el cards.Element, sanitize func(string) string) string {
	label := sanitize(el.Label)
	if label == "" {
		label = el.ID
	}
	if el.Kind == cards.InputChoiceKind {
		opts := make([]string, 0, len(el.Choices))
		for _, c := range el.Choices {
			opts = append(opts, sanitize(c.Title))
		}
		joined := strings.Join(opts, ", ")
		if joined == "" {
			joined = "(choose any option)"
		}
		return fmt.Sprintf("%s: reply with [%s].", label, joined)
	}
	return fmt.Sprintf("%s: reply with your answer.", label)
}

func (r WhatsApp) buttons(ir *cards.IR, m *metrics, warnings *[]string) []map[string]any {
	var buttons []map[string]any
	truncated := false
	for _, a := range ir.Actions {
		if len(buttons) >= whatsappMaxButtons {
			truncated = true
			break
		}
		switch a.Type {
		case cards.ActionOpenURL:
			resolved, ok := resolveURL(&ir.Meta, r.Policy, a.URL, m, warnings)
			if !ok {
				continue
			}
			buttons = append(buttons, map[string]any{"type": "URL", "text": a.Title, "url": resolved})
		case cards.ActionPostback:
			data, err := json.Marshal(a.Data)
			if err != nil {
				continue
			}
			buttons = append(buttons, map[string]any{"type": "QUICK_REPLY", "text": a.Title, "payload": string(data)})
		}
	}
	if truncated {
		*warnings = append(*warnings, "whatsapp.actions_truncated")
	}
	return buttons
}
