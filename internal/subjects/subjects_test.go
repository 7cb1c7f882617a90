package subjects

import "testing"

func TestIngress(t *testing.T) {
	tests := []struct {
		name                       string
		env, tenant, team, platform string
		want                       string
	}{
		{
			name: "normalizes spaces",
			env:  "dev", tenant: "acme", team: "team a", platform: "web chat",
			want: "greentic.messaging.ingress.dev.acme.team-a.web-chat",
		},
		{
			name: "lowercases",
			env:  "Prod", tenant: "ACME", team: "Support", platform: "Slack",
			want: "greentic.messaging.ingress.prod.acme.support.slack",
		},
		{
			name: "reserved characters",
			env:  "dev", tenant: "a/b", team: "t*t", platform: "p>q",
			want: "greentic.messaging.ingress.dev.a-b.t-t.p-q",
		},
		{
			name: "empty tokens",
			env:  "dev", tenant: "", team: "  ", platform: "slack",
			want: "greentic.messaging.ingress.dev.unknown.unknown.slack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ingress(tt.env, tt.tenant, tt.team, tt.platform)
			if got != tt.want {
				t.Errorf("Ingress() = %q, want %q", got, tt.want)
			}
			if again := Ingress(tt.env, tt.tenant, tt.team, tt.platform); again != got {
				t.Errorf("Ingress() not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestEgress(t *testing.T) {
	if got, want := Egress("acme", "slack"), "greentic.messaging.egress.out.acme.slack"; got != want {
		t.Errorf("Egress() = %q, want %q", got, want)
	}
}

func TestDLQ(t *testing.T) {
	tests := []struct {
		direction string
		want      string
	}{
		{"in", "greentic.messaging.dlq.in.acme.slack"},
		{"out", "greentic.messaging.dlq.out.acme.slack"},
		{"sideways", "greentic.messaging.dlq.in.acme.slack"},
		{"", "greentic.messaging.dlq.in.acme.slack"},
	}

	for _, tt := range tests {
		if got := DLQ(tt.direction, "acme", "slack"); got != tt.want {
			t.Errorf("DLQ(%q) = %q, want %q", tt.direction, got, tt.want)
		}
	}
}

func TestQueueGroupAndConsumer(t *testing.T) {
	if got, want := QueueGroup("Acme Corp"), "egress-acme-corp"; got != want {
		t.Errorf("QueueGroup() = %q, want %q", got, want)
	}
	if got, want := Consumer("acme", "slack"), "egress-acme-slack"; got != want {
		t.Errorf("Consumer() = %q, want %q", got, want)
	}
}
