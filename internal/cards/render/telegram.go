package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const (
	telegramMaxButtons = 10
	telegramButtonsRow = 3
)

// Telegram renders the IR as a sendMessage call with HTML formatting
// and an inline keyboard. Inputs are downgraded to reply prompts.
type Telegram struct {
	Policy *URLPolicy
}

func (Telegram) Platform() core.Platform { return core.PlatformTelegram }
func (Telegram) TargetTier() cards.Tier  { return cards.TierBasic }

func (r Telegram) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics
	var lines []string

	sanitize := func(s string) string { return sanitizeForTier(s, ir.Tier, &m) }

	if t := sanitize(ir.Head.Title); t != "" {
		lines = append(lines, "<b>"+htmlEscape(t)+"</b>")
	}
	head := sanitize(ir.Head.Text)
	if head != "" {
		lines = append(lines, htmlEscape(head))
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
				lines = append(lines, htmlEscape(text))
			}
		case cards.ElementImage:
			if el.URL != "" {
				lines = append(lines, el.URL)
			}
		case cards.ElementFactSet:
			for _, f := range el.Facts {
				lines = append(lines, fmt.Sprintf("• <b>%s</b>: %s", htmlEscape(sanitize(f.Label)), htmlEscape(sanitize(f.Value))))
			}
		case cards.ElementInput:
			out.Warnings = append(out.Warnings, "telegram.inputs_not_supported")
			lines = append(lines, telegramInputPrompt(el, sanitize))
		}
	}

	if f := sanitize(ir.Head.Footer); f != "" {
		lines = append(lines, "<i>"+htmlEscape(f)+"</i>")
	}

	text := strings.Join(lines, "\n")
	text = enforceTextLimit(text, telegramTextLimit, "telegram.body_truncated", &m, &out.Warnings)

	payload := map[string]any{
		"method":     "sendMessage",
		"parse_mode": "HTML",
		"text":       text,
	}
	if keyboard := r.keyboard(ir, &m, &out.Warnings); len(keyboard) > 0 {
		payload["reply_markup"] = map[string]any{"inline_keyboard": keyboard}
	}

	out.Payload = mustJSON(payload)
	m.fill(&out)
	return out
}

func telegramInputPrompt(el cards.Element, sanitize func(string) string) string {
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
			joined = "(any option)"
		}
		return fmt.Sprintf("<i>%s</i>: reply with one of [%s].", htmlEscape(label), htmlEscape(joined))
	}
	return fmt.Sprintf("<i>%s</i>: reply with your answer.", htmlEscape(label))
}

// keyboard builds the inline keyboard, capping at ten buttons in rows
// of three.
func (r Telegram) keyboard(ir *cards.IR, m *metrics, warnings *[]string) [][]map[string]any {
	var buttons []map[string]any
	truncated := false
	for _, a := range ir.Actions {
		if len(buttons) >= telegramMaxButtons {
			truncated = true
			break
		}
		switch a.Type {
		case cards.ActionOpenURL:
			resolved, ok := resolveURL(&ir.Meta, r.Policy, a.URL, m, warnings)
			if !ok {
				continue
			}
			buttons = append(buttons, map[string]any{"text": a.Title, "url": resolved})
		case cards.ActionPostback:
			data, err := json.Marshal(a.Data)
			if err != nil {
				continue
			}
			buttons = append(buttons, map[string]any{"text": a.Title, "callback_data": string(data)})
		}
	}
	if truncated {
		*warnings = append(*warnings, "telegram.actions_truncated")
	}

	var rows [][]map[string]any
	for len(buttons) > 0 {
		n := telegramButtonsRow
		if len(buttons) < n {
			n = len(buttons)
		}
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	return rows
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
