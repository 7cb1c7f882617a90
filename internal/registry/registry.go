// Package registry loads adapter descriptors from pack archives and
// indexes them by name and inferred platform. The registry is built
// once at startup and read-only afterwards.
package registry

import (
	"fmt"
	"strings"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// Kind declares which directions an adapter supports.
type Kind string

const (
	KindIngress       Kind = "ingress"
	KindEgress        Kind = "egress"
	KindIngressEgress Kind = "ingress_egress"
)

func (k Kind) valid() bool {
	return k == KindIngress || k == KindEgress || k == KindIngressEgress
}

// AdapterDescriptor binds a platform identifier to a runnable
// component and its default flow.
type AdapterDescriptor struct {
	PackID       string   `json:"pack_id" yaml:"-"`
	PackVersion  string   `json:"pack_version" yaml:"-"`
	Name         string   `json:"name" yaml:"name"`
	Kind         Kind     `json:"kind" yaml:"kind"`
	Component    string   `json:"component" yaml:"component"`
	DefaultFlow  string   `json:"default_flow,omitempty" yaml:"default_flow"`
	CustomFlow   string   `json:"custom_flow,omitempty" yaml:"custom_flow"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities"`
	Source       string   `json:"source,omitempty" yaml:"-"`
}

// SupportsEgress reports whether the descriptor's kind allows
// outbound delivery.
func (d *AdapterDescriptor) SupportsEgress() bool {
	return d.Kind == KindEgress || d.Kind == KindIngressEgress
}

// SupportsIngress reports whether the descriptor's kind allows
// inbound normalization.
func (d *AdapterDescriptor) SupportsIngress() bool {
	return d.Kind == KindIngress || d.Kind == KindIngressEgress
}

// Registry holds the loaded descriptors in insertion order.
type Registry struct {
	byName  map[string]*AdapterDescriptor
	ordered []*AdapterDescriptor
}

func New() *Registry {
	return &Registry{byName: make(map[string]*AdapterDescriptor)}
}

// Register adds a descriptor. Duplicate names and unknown kinds are
// rejected.
func (r *Registry) Register(d AdapterDescriptor) error {
	if d.Name == "" {
		return &core.ErrInvalidInput{Field: "name", Message: "adapter name must not be empty"}
	}
	if !d.Kind.valid() {
		return &core.ErrInvalidInput{Field: "kind", Message: fmt.Sprintf("unknown adapter kind %q", d.Kind)}
	}
	if _, exists := r.byName[d.Name]; exists {
		return &core.DomainError{
			Code:    core.ErrorCodeValidation,
			Message: fmt.Sprintf("duplicate adapter name %q", d.Name),
		}
	}
	cp := d
	r.byName[d.Name] = &cp
	r.ordered = append(r.ordered, &cp)
	return nil
}

// Get returns the descriptor registered under name, or nil.
func (r *Registry) Get(name string) *AdapterDescriptor {
	return r.byName[name]
}

// All returns the descriptors in insertion order.
func (r *Registry) All() []*AdapterDescriptor {
	out := make([]*AdapterDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// DefaultForPlatform returns the first registered egress-capable
// adapter whose name names the platform. Insertion order makes the
// choice deterministic.
func (r *Registry) DefaultForPlatform(platform core.Platform) (*AdapterDescriptor, error) {
	for _, d := range r.ordered {
		if !d.SupportsEgress() {
			continue
		}
		if inferPlatform(d.Name) == platform {
			return d, nil
		}
	}
	return nil, &core.ErrAdapterNotFound{Platform: platform}
}

// RequireEgress gates outbound use of an adapter on its declared
// kind.
func RequireEgress(d *AdapterDescriptor) error {
	if !d.SupportsEgress() {
		return &core.ErrUnsupportedOperation{Adapter: d.Name, Operation: "egress"}
	}
	return nil
}

// RequireIngress gates inbound use of an adapter on its declared
// kind.
func RequireIngress(d *AdapterDescriptor) error {
	if !d.SupportsIngress() {
		return &core.ErrUnsupportedOperation{Adapter: d.Name, Operation: "ingress"}
	}
	return nil
}

// inferPlatform maps an adapter name like "egress-slack" or
// "telegram-bridge" to the platform its name contains.
func inferPlatform(name string) core.Platform {
	name = strings.ToLower(name)
	for _, p := range core.Platforms {
		token := string(p)
		if name == token ||
			strings.HasPrefix(name, token+"-") || strings.HasPrefix(name, token+"_") ||
			strings.HasSuffix(name, "-"+token) || strings.HasSuffix(name, "_"+token) ||
			strings.Contains(name, "-"+token+"-") || strings.Contains(name, "_"+token+"_") {
			return p
		}
	}
	return ""
}
