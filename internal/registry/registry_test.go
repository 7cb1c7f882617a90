package registry

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	d := AdapterDescriptor{Name: "egress-slack", Kind: KindEgress, Component: "wasm/slack.wasm"}

	if err := r.Register(d); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(d)
	if err == nil {
		t.Fatal("duplicate register should fail")
	}
	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != core.ErrorCodeValidation {
		t.Errorf("duplicate register error = %v, want validation DomainError", err)
	}
}

func TestRegisterRejectsBadKind(t *testing.T) {
	r := New()
	if err := r.Register(AdapterDescriptor{Name: "x", Kind: "sideways"}); err == nil {
		t.Error("unknown kind should fail")
	}
	if err := r.Register(AdapterDescriptor{Kind: KindEgress}); err == nil {
		t.Error("empty name should fail")
	}
}

func TestDefaultForPlatform(t *testing.T) {
	r := New()
	for _, d := range []AdapterDescriptor{
		{Name: "ingress-slack", Kind: KindIngress},
		{Name: "egress-slack", Kind: KindEgress},
		{Name: "slack-premium", Kind: KindEgress},
		{Name: "telegram-bridge", Kind: KindIngressEgress},
	} {
		if err := r.Register(d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.DefaultForPlatform(core.PlatformSlack)
	if err != nil {
		t.Fatal(err)
	}
	// ingress-slack is skipped (wrong kind); egress-slack wins by
	// insertion order over slack-premium.
	if got.Name != "egress-slack" {
		t.Errorf("DefaultForPlatform(slack) = %q, want egress-slack", got.Name)
	}

	got, err = r.DefaultForPlatform(core.PlatformTelegram)
	if err != nil || got.Name != "telegram-bridge" {
		t.Errorf("DefaultForPlatform(telegram) = %v, %v", got, err)
	}

	_, err = r.DefaultForPlatform(core.PlatformWebex)
	var notFound *core.ErrAdapterNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("DefaultForPlatform(webex) error = %v, want ErrAdapterNotFound", err)
	}
}

func TestCapabilityGate(t *testing.T) {
	ingressOnly := &AdapterDescriptor{Name: "ingress-teams", Kind: KindIngress}

	if err := RequireIngress(ingressOnly); err != nil {
		t.Errorf("RequireIngress on ingress adapter: %v", err)
	}
	err := RequireEgress(ingressOnly)
	var unsupported *core.ErrUnsupportedOperation
	if !errors.As(err, &unsupported) {
		t.Errorf("RequireEgress on ingress adapter = %v, want ErrUnsupportedOperation", err)
	}
}

const manifestYAML = `id: greentic-slack
version: 1.2.0
messaging_adapters:
  - name: egress-slack
    kind: egress
    component: wasm/egress_slack.wasm
    capabilities: [send_text, send_card]
    default_flow: flows/slack_default.yaml
`

func TestLoadDir(t *testing.T) {
	root := t.TempDir()

	// Bare manifest.
	dir := filepath.Join(root, "slack-pack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pack.yaml"), []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	// Zip archive with a manifest for a second platform.
	archive := filepath.Join(root, "telegram.gtpack")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("pack.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("id: greentic-telegram\nversion: 0.9.0\nmessaging_adapters:\n  - name: egress-telegram\n    kind: egress\n    component: wasm/egress_telegram.wasm\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := LoadDir(root)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(r.All()); got != 2 {
		t.Fatalf("loaded %d adapters, want 2", got)
	}

	slack := r.Get("egress-slack")
	if slack == nil {
		t.Fatal("egress-slack not registered")
	}
	if slack.PackID != "greentic-slack" || slack.PackVersion != "1.2.0" {
		t.Errorf("pack metadata = %q %q", slack.PackID, slack.PackVersion)
	}
	if len(slack.Capabilities) != 2 {
		t.Errorf("capabilities = %v", slack.Capabilities)
	}

	tg := r.Get("egress-telegram")
	if tg == nil {
		t.Fatal("egress-telegram not registered from archive")
	}
	if tg.Source != archive {
		t.Errorf("source = %q, want archive path", tg.Source)
	}
}
