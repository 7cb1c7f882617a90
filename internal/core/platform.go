package core

import (
	"fmt"
	"strings"
)

// Platform identifies a supported chat platform. Values are the
// lowercase wire names used in bus subjects and JSON payloads.
type Platform string

const (
	PlatformSlack    Platform = "slack"
	PlatformTeams    Platform = "teams"
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformWebex    Platform = "webex"
	PlatformWebChat  Platform = "webchat"
)

// Platforms lists all supported platforms in a stable order.
var Platforms = []Platform{
	PlatformSlack,
	PlatformTeams,
	PlatformTelegram,
	PlatformWhatsApp,
	PlatformWebex,
	PlatformWebChat,
}

func (p Platform) String() string { return string(p) }

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformSlack, PlatformTeams, PlatformTelegram, PlatformWhatsApp, PlatformWebex, PlatformWebChat:
		return true
	}
	return false
}

// ParsePlatform converts a case-insensitive platform name into a
// Platform value.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &DomainError{Code: ErrorCodeValidation, Message: fmt.Sprintf("unsupported platform %q", s)}
	}
	return p, nil
}
