package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// normalize lowers a platform webhook payload into the neutral
// envelope. ok=false means the payload is valid but carries nothing
// to publish.
func normalize(platform core.Platform, body []byte) (*core.MessageEnvelope, bool, error) {
	var (
		env *core.MessageEnvelope
		ok  bool
		err error
	)
	switch platform {
	case core.PlatformWebChat:
		env, ok, err = normalizeWebChat(body)
	case core.PlatformTelegram:
		env, ok, err = normalizeTelegram(body)
	case core.PlatformSlack:
		env, ok, err = normalizeSlack(body)
	case core.PlatformTeams:
		env, ok, err = normalizeTeams(body)
	case core.PlatformWhatsApp:
		env, ok, err = normalizeWhatsApp(body)
	case core.PlatformWebex:
		env, ok, err = normalizeWebex(body)
	default:
		return nil, false, &core.DomainError{Code: core.ErrorCodeUnsupported, Message: "unknown platform"}
	}
	if err != nil || !ok {
		return nil, false, err
	}

	env.Platform = platform
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return env, true, nil
}

func parseErr(err error) error {
	return &core.DomainError{Code: core.ErrorCodeValidation, Message: "malformed payload", Err: err}
}

func normalizeWebChat(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		ChatID string `json:"chat_id"`
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	if in.ChatID == "" {
		return nil, false, &core.DomainError{Code: core.ErrorCodeValidation, Message: "chat_id is required"}
	}
	return &core.MessageEnvelope{
		ChatID: in.ChatID,
		UserID: in.UserID,
		Text:   in.Text,
		MsgID:  fmt.Sprintf("web:%d", time.Now().UnixNano()),
	}, true, nil
}

func normalizeTelegram(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		UpdateID int64 `json:"update_id"`
		Message  *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
			From struct {
				ID int64 `json:"id"`
			} `json:"from"`
			Text string `json:"text"`
			Date int64  `json:"date"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	if in.Message == nil {
		return nil, false, nil
	}
	env := &core.MessageEnvelope{
		ChatID: strconv.FormatInt(in.Message.Chat.ID, 10),
		UserID: strconv.FormatInt(in.Message.From.ID, 10),
		Text:   in.Message.Text,
		MsgID:  fmt.Sprintf("tg:%d", in.UpdateID),
	}
	if in.Message.Date > 0 {
		env.Timestamp = time.Unix(in.Message.Date, 0).UTC().Format(time.RFC3339)
	}
	return env, true, nil
}

// slackChallenge answers the Events API ownership handshake.
func slackChallenge(body []byte) (string, bool) {
	var in struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return "", false
	}
	return in.Challenge, in.Type == "url_verification"
}

func normalizeSlack(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		Type  string `json:"type"`
		Event *struct {
			Type     string `json:"type"`
			BotID    string `json:"bot_id"`
			Channel  string `json:"channel"`
			User     string `json:"user"`
			TS       string `json:"ts"`
			Text     string `json:"text"`
			ThreadTS string `json:"thread_ts"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	ev := in.Event
	if in.Type != "event_callback" || ev == nil || ev.Type != "message" {
		return nil, false, nil
	}
	// Drop the gateway's own echoes.
	if ev.BotID != "" {
		return nil, false, nil
	}
	return &core.MessageEnvelope{
		ChatID:   ev.Channel,
		UserID:   ev.User,
		ThreadID: ev.ThreadTS,
		Text:     ev.Text,
		MsgID:    fmt.Sprintf("slack:%s:%s", ev.Channel, ev.TS),
	}, true, nil
}

func normalizeTeams(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		From struct {
			ID string `json:"id"`
		} `json:"from"`
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	if in.Type != "message" {
		return nil, false, nil
	}
	return &core.MessageEnvelope{
		ChatID: in.Conversation.ID,
		UserID: in.From.ID,
		Text:   in.Text,
		MsgID:  "teams:" + in.ID,
	}, true, nil
}

func normalizeWhatsApp(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Messages []struct {
						ID   string `json:"id"`
						From string `json:"from"`
						Text struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	for _, entry := range in.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				return &core.MessageEnvelope{
					ChatID: msg.From,
					UserID: msg.From,
					Text:   msg.Text.Body,
					MsgID:  "wa:" + msg.ID,
				}, true, nil
			}
		}
	}
	// Status-only notifications carry no messages.
	return nil, false, nil
}

func normalizeWebex(body []byte) (*core.MessageEnvelope, bool, error) {
	var in struct {
		Data *struct {
			ID       string `json:"id"`
			RoomID   string `json:"roomId"`
			PersonID string `json:"personId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, parseErr(err)
	}
	if in.Data == nil || in.Data.ID == "" {
		return nil, false, nil
	}
	// Message bodies are not in the webhook; the flow fetches them by
	// resource id.
	return &core.MessageEnvelope{
		ChatID:  in.Data.RoomID,
		UserID:  in.Data.PersonID,
		MsgID:   "webex:" + in.Data.ID,
		Context: map[string]any{"resource_id": in.Data.ID},
	}, true, nil
}
