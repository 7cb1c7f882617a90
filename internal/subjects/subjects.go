// Package subjects computes the canonical bus subjects and stream
// names. These strings are the sole routing contract with the bus;
// changing them is a protocol break.
package subjects

import (
	"fmt"
	"strings"
)

const prefix = "greentic.messaging"

// Stream and consumer naming for the durable bus resources.
const (
	IngressStream = "GREENTIC_MSG_INGRESS"
	EgressStream  = "GREENTIC_MSG_EGRESS"
	DLQStream     = "GREENTIC_MSG_DLQ"

	IngressWildcard = prefix + ".ingress.>"
	EgressWildcard  = prefix + ".egress.>"
	DLQWildcard     = prefix + ".dlq.>"
)

// Ingress returns the subject an ingress adapter publishes inbound
// envelopes to.
func Ingress(env, tenant, team, platform string) string {
	return fmt.Sprintf("%s.ingress.%s.%s.%s.%s", prefix, norm(env), norm(tenant), norm(team), norm(platform))
}

// Egress returns the subject egress workers consume outbound messages
// from.
func Egress(tenant, platform string) string {
	return fmt.Sprintf("%s.egress.out.%s.%s", prefix, norm(tenant), norm(platform))
}

// DLQ returns the dead-letter subject for the given direction. Any
// direction other than "in" or "out" falls back to "in".
func DLQ(direction, tenant, platform string) string {
	if direction != "in" && direction != "out" {
		direction = "in"
	}
	return fmt.Sprintf("%s.dlq.%s.%s.%s", prefix, direction, norm(tenant), norm(platform))
}

// QueueGroup returns the egress queue group name for a tenant.
func QueueGroup(tenant string) string {
	return "egress-" + norm(tenant)
}

// Consumer returns the durable egress consumer name for a tenant and
// platform.
func Consumer(tenant, platform string) string {
	return fmt.Sprintf("egress-%s-%s", norm(tenant), norm(platform))
}

var tokenReplacer = strings.NewReplacer(
	" ", "-",
	"\t", "-",
	"\r", "-",
	"\n", "-",
	"*", "-",
	">", "-",
	"/", "-",
)

// norm maps an arbitrary identifier into a single subject token:
// trimmed, lowercased, reserved characters replaced with "-", empty
// results substituted with "unknown".
func norm(s string) string {
	s = tokenReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return "unknown"
	}
	return s
}
