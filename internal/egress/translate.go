package egress

import (
	"context"
	"encoding/json"

	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// Translator lowers an OutMessage into the platform wire payload.
// Precedence: native adaptive payload, then card render, then plain
// text.
type Translator struct {
	engine *cards.Engine
}

func NewTranslator(engine *cards.Engine) *Translator {
	return &Translator{engine: engine}
}

func (t *Translator) Translate(ctx context.Context, msg *core.OutMessage) (json.RawMessage, []string, error) {
	switch {
	case len(msg.Adaptive) > 0:
		out, err := t.engine.Render(ctx, msg.Platform, msg.Tenant, &core.MessageCard{
			Kind:     core.MessageCardStandard,
			Adaptive: msg.Adaptive,
		})
		if err != nil {
			return nil, nil, err
		}
		return addressed(msg, out.Payload), out.Warnings, nil
	case msg.Card != nil:
		out, err := t.engine.Render(ctx, msg.Platform, msg.Tenant, msg.Card)
		if err != nil {
			return nil, nil, err
		}
		return addressed(msg, out.Payload), out.Warnings, nil
	default:
		payload := map[string]any{"text": msg.Text}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		return addressed(msg, data), nil, nil
	}
}

// addressed wraps the rendered payload with the routing fields the
// platform adapter needs.
func addressed(msg *core.OutMessage, payload json.RawMessage) json.RawMessage {
	wrapper := map[string]any{
		"chat_id": msg.ChatID,
		"payload": payload,
	}
	if msg.ThreadID != "" {
		wrapper["thread_id"] = msg.ThreadID
	}
	data, err := json.Marshal(wrapper)
	if err != nil {
		return payload
	}
	return data
}
