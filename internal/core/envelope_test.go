package core

import (
	"testing"
	"time"
)

func validEnvelope() MessageEnvelope {
	return MessageEnvelope{
		Tenant:    "acme",
		Platform:  PlatformTelegram,
		ChatID:    "c1",
		UserID:    "u1",
		MsgID:     "tg:1",
		Text:      "hi",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestMessageEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MessageEnvelope)
		wantErr bool
	}{
		{"valid", func(*MessageEnvelope) {}, false},
		{"missing tenant", func(e *MessageEnvelope) { e.Tenant = "" }, true},
		{"missing chat id", func(e *MessageEnvelope) { e.ChatID = "" }, true},
		{"missing msg id", func(e *MessageEnvelope) { e.MsgID = "" }, true},
		{"bad platform", func(e *MessageEnvelope) { e.Platform = "irc" }, true},
		{"bad timestamp", func(e *MessageEnvelope) { e.Timestamp = "yesterday" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEnvelope()
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"slack", PlatformSlack, false},
		{"Telegram", PlatformTelegram, false},
		{"  WEBCHAT ", PlatformWebChat, false},
		{"irc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlatform(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePlatform(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTenantCtxValidate(t *testing.T) {
	ctx := TenantCtx{Env: "dev", Tenant: "acme"}
	if err := ctx.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := (TenantCtx{Tenant: "acme"}).Validate(); err == nil {
		t.Error("expected error for empty env")
	}
	if err := (TenantCtx{Env: "dev", Tenant: "ac\x00me"}).Validate(); err == nil {
		t.Error("expected error for control character in tenant")
	}
}

func TestTenantCtxBuildersCopy(t *testing.T) {
	base := TenantCtx{Env: "dev", Tenant: "acme"}
	withTeam := base.WithTeam("support")
	withAttempt := base.WithAttempt(2)

	if base.Team != "" || base.Attempt != 0 {
		t.Errorf("builders mutated the receiver: %+v", base)
	}
	if withTeam.Team != "support" {
		t.Errorf("WithTeam: got %q", withTeam.Team)
	}
	if withAttempt.Attempt != 2 {
		t.Errorf("WithAttempt: got %d", withAttempt.Attempt)
	}
}
