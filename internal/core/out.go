package core

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// OutKind discriminates the payload of an OutMessage.
type OutKind string

const (
	OutKindText OutKind = "text"
	OutKindCard OutKind = "card"
)

// OutMessage is one outbound delivery produced by the flow runner and
// consumed by an egress worker.
type OutMessage struct {
	Ctx      TenantCtx       `json:"ctx"`
	Tenant   string          `json:"tenant"`
	Platform Platform        `json:"platform"`
	ChatID   string          `json:"chat_id"`
	ThreadID string          `json:"thread_id,omitempty"`
	Kind     OutKind         `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Card     *MessageCard    `json:"message_card,omitempty"`
	Adaptive json.RawMessage `json:"adaptive_card,omitempty"`
	Meta     map[string]any  `json:"meta,omitempty"`
}

// Validate enforces kind/payload coherence.
func (m *OutMessage) Validate() error {
	if m.Tenant == "" {
		return &ErrInvalidInput{Field: "tenant", Message: "must not be empty"}
	}
	if !m.Platform.Valid() {
		return &ErrInvalidInput{Field: "platform", Message: "unsupported platform " + string(m.Platform)}
	}
	if m.ChatID == "" {
		return &ErrInvalidInput{Field: "chat_id", Message: "must not be empty"}
	}
	switch m.Kind {
	case OutKindText:
		if m.Text == "" {
			return &ErrInvalidInput{Field: "text", Message: "required for kind=text"}
		}
	case OutKindCard:
		if m.Card == nil && len(m.Adaptive) == 0 {
			return &ErrInvalidInput{Field: "message_card", Message: "card or adaptive payload required for kind=card"}
		}
	default:
		return &ErrInvalidInput{Field: "kind", Message: fmt.Sprintf("unknown kind %q", m.Kind)}
	}
	return nil
}

// MessageID returns the stable identifier used for DLQ records and
// logging. It prefers an explicit meta msg_id and otherwise derives a
// deterministic id from the message content.
func (m *OutMessage) MessageID() string {
	if id, ok := m.Meta["msg_id"].(string); ok && id != "" {
		return id
	}
	h := sha1.Sum([]byte(string(m.Kind) + "|" + m.Text))
	return fmt.Sprintf("out:%s:%s:%s", m.Tenant, m.ChatID, hex.EncodeToString(h[:])[:12])
}
