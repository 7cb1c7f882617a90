package core

import (
	"time"
)

// MessageEnvelope is the canonical JSON representation of one inbound
// event. It is produced by an ingress normalizer and consumed exactly
// once by the flow runner; MsgID is the idempotency key component
// unique per platform event.
type MessageEnvelope struct {
	Tenant    string         `json:"tenant"`
	Platform  Platform       `json:"platform"`
	ChatID    string         `json:"chat_id"`
	UserID    string         `json:"user_id"`
	ThreadID  string         `json:"thread_id,omitempty"`
	MsgID     string         `json:"msg_id"`
	Text      string         `json:"text,omitempty"`
	Timestamp string         `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Validate enforces the envelope invariants: msg_id present, platform
// supported, timestamp parseable as RFC3339.
func (e *MessageEnvelope) Validate() error {
	if e.Tenant == "" {
		return &ErrInvalidInput{Field: "tenant", Message: "must not be empty"}
	}
	if !e.Platform.Valid() {
		return &ErrInvalidInput{Field: "platform", Message: "unsupported platform " + string(e.Platform)}
	}
	if e.ChatID == "" {
		return &ErrInvalidInput{Field: "chat_id", Message: "must not be empty"}
	}
	if e.MsgID == "" {
		return &ErrInvalidInput{Field: "msg_id", Message: "must not be empty"}
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return &ErrInvalidInput{Field: "timestamp", Message: "must be RFC3339"}
	}
	return nil
}
