package render

import (
	"encoding/json"
	"fmt"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

const (
	slackHeaderLimit     = 150
	slackModalTitleLimit = 24
	slackMaxFields       = 10
	slackMaxButtons      = 5
	slackModalCallbackID = "gsm_card_modal"
)

// Slack renders the IR as Block Kit. Cards with inputs become a modal
// view; everything else is a message block list.
type Slack struct {
	Policy *URLPolicy
}

func (Slack) Platform() core.Platform { return core.PlatformSlack }
func (Slack) TargetTier() cards.Tier  { return cards.TierAdvanced }

func (r Slack) Render(ir *cards.IR) cards.RenderOutput {
	var out cards.RenderOutput
	var m metrics

	if ir.HasInputs() {
		title := ir.Head.Title
		if title == "" {
			title = ir.Head.Text
		}
		if title == "" {
			title = "Card"
		}
		modal := map[string]any{
			"type":        "modal",
			"title":       slackPlainText(truncate(title, slackModalTitleLimit)),
			"submit":      slackPlainText("Submit"),
			"close":       slackPlainText("Cancel"),
			"callback_id": slackModalCallbackID,
			"blocks":      r.blocks(ir, true, &m, &out.Warnings),
		}
		out.UsedModal = true
		out.Payload = mustJSON(modal)
		m.fill(&out)
		return out
	}

	payload := map[string]any{"blocks": r.blocks(ir, false, &m, &out.Warnings)}
	out.Payload = mustJSON(payload)
	m.fill(&out)
	return out
}

func (r Slack) blocks(ir *cards.IR, includeInputs bool, m *metrics, warnings *[]string) []map[string]any {
	var blocks []map[string]any
	sanitize := func(s string) string { return sanitizeForTier(s, ir.Tier, m) }

	if t := sanitize(ir.Head.Title); t != "" && !includeInputs {
		blocks = append(blocks, map[string]any{
			"type": "header",
			"text": slackPlainText(truncate(t, slackHeaderLimit)),
		})
	}

	sawText := false
	inputIdx := 0
	for _, el := range ir.Elements {
		switch el.Type {
		case cards.ElementText:
			sawText = true
			text := enforceTextLimit(sanitize(el.Text), slackTextLimit, "slack.text_truncated", m, warnings)
			kind := "plain_text"
			if el.Markdown {
				kind = "mrkdwn"
			}
			blocks = append(blocks, slackSection(kind, text))
		case cards.ElementImage:
			alt := el.Alt
			if alt == "" {
				alt = "image"
			}
			blocks = append(blocks, map[string]any{"type": "image", "image_url": el.URL, "alt_text": alt})
		case cards.ElementFactSet:
			facts := el.Facts
			if len(facts) > slackMaxFields {
				facts = facts[:slackMaxFields]
				*warnings = append(*warnings, "slack.factset_truncated")
			}
			fields := make([]map[string]any, 0, len(facts))
			for _, f := range facts {
				fields = append(fields, map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s*\n%s", sanitize(f.Label), sanitize(f.Value)),
				})
			}
			blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
		case cards.ElementInput:
			if !includeInputs {
				*warnings = append(*warnings, "slack.inputs_require_modal")
				continue
			}
			inputIdx++
			if block, ok := slackInputBlock(el, inputIdx, sanitize, warnings); ok {
				blocks = append(blocks, block)
			}
		}
	}

	if head := sanitize(ir.Head.Text); head != "" && !sawText {
		blocks = append(blocks, slackSection("plain_text", head))
	}

	if f := sanitize(ir.Head.Footer); f != "" {
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": []map[string]any{{"type": "mrkdwn", "text": f}},
		})
	}

	if actions := r.actions(ir, m, warnings); len(actions) > 0 {
		blocks = append(blocks, map[string]any{"type": "actions", "elements": actions})
	}
	return blocks
}

func slackInputBlock(el cards.Element, idx int, sanitize func(string) string, warnings *[]string) (map[string]any, bool) {
	id := el.ID
	if id == "" {
		id = fmt.Sprintf("input_%d", idx)
	}
	label := sanitize(el.Label)
	if label == "" {
		label = id
	}

	var element map[string]any
	switch {
	case el.Kind == cards.InputChoiceKind && len(el.Choices) > 0:
		options := make([]map[string]any, 0, len(el.Choices))
		for _, c := range el.Choices {
			options = append(options, map[string]any{
				"text":  slackPlainText(c.Title),
				"value": c.Value,
			})
		}
		element = map[string]any{
			"type":      "static_select",
			"action_id": id + "_select",
			"options":   options,
		}
	case el.Kind == cards.InputChoiceKind:
		*warnings = append(*warnings, "slack.choice_without_options")
		return nil, false
	default:
		element = map[string]any{
			"type":      "plain_text_input",
			"action_id": id + "_action",
		}
	}

	return map[string]any{
		"type":     "input",
		"block_id": id,
		"label":    slackPlainText(label),
		"element":  element,
		"optional": !el.Required,
	}, true
}

func (r Slack) actions(ir *cards.IR, m *metrics, warnings *[]string) []map[string]any {
	var elements []map[string]any
	truncated := false
	for i, a := range ir.Actions {
		if len(elements) >= slackMaxButtons {
			truncated = true
			break
		}
		switch a.Type {
		case cards.ActionOpenURL:
			resolved, ok := resolveURL(&ir.Meta, r.Policy, a.URL, m, warnings)
			if !ok {
				continue
			}
			elements = append(elements, map[string]any{
				"type": "button",
				"text": slackPlainText(a.Title),
				"url":  resolved,
			})
		case cards.ActionPostback:
			data, err := json.Marshal(a.Data)
			if err != nil {
				continue
			}
			elements = append(elements, map[string]any{
				"type":      "button",
				"text":      slackPlainText(a.Title),
				"value":     string(data),
				"action_id": fmt.Sprintf("postback_%d", i),
			})
		}
	}
	if truncated {
		*warnings = append(*warnings, "slack.actions_truncated")
	}
	return elements
}

func slackSection(kind, text string) map[string]any {
	textObj := map[string]any{"type": kind, "text": text}
	if kind == "plain_text" {
		textObj["emoji"] = true
	}
	return map[string]any{"type": "section", "text": textObj}
}

func slackPlainText(text string) map[string]any {
	return map[string]any{"type": "plain_text", "text": text, "emoji": true}
}
