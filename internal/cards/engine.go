package cards

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

// OAuthStarter mints a hosted sign-in URL for an OAuth card. The
// gateway's collaborator client implements it.
type OAuthStarter interface {
	StartAuth(ctx context.Context, tenant string, spec *AuthSpec) (startURL, connectionName string, err error)
}

// Engine composes the per-platform renderers behind a single entry
// point: normalize the card, clamp the tier to what the platform
// supports, render.
type Engine struct {
	renderers     map[core.Platform]Renderer
	oauth         OAuthStarter
	metrics       *telemetry.Metrics
	appLinkSecret string
	log           *slog.Logger
}

// NewEngine indexes the renderers by platform. The OAuth starter is
// optional; without it sign-in cards fall back to their open-URL
// button.
func NewEngine(renderers []Renderer, oauth OAuthStarter, m *telemetry.Metrics) *Engine {
	byPlatform := make(map[core.Platform]Renderer, len(renderers))
	for _, r := range renderers {
		byPlatform[r.Platform()] = r
	}
	return &Engine{
		renderers: byPlatform,
		oauth:     oauth,
		metrics:   m,
		log:       slog.Default().With("component", "cards"),
	}
}

// SetAppLinkSecret installs the deployment-wide signing secret used
// when a card requests app-link rewriting without carrying its own.
func (e *Engine) SetAppLinkSecret(secret string) {
	e.appLinkSecret = secret
}

// Renderer returns the renderer registered for a platform.
func (e *Engine) Renderer(platform core.Platform) (Renderer, bool) {
	r, ok := e.renderers[platform]
	return r, ok
}

// Normalize lowers a MessageCard into the IR. Adaptive cards keep
// their raw payload in the meta for premium passthrough.
func (e *Engine) Normalize(card *core.MessageCard) (*IR, error) {
	if len(card.Adaptive) > 0 {
		ir, err := ACToIR(card.Adaptive)
		if err != nil {
			return nil, err
		}
		ir.Meta.Source = "adaptive"
		ir.Meta.AdaptivePayload = card.Adaptive
		e.fillAppLinkSecret(ir)
		return ir, nil
	}
	ir := FromCard(card)
	e.fillAppLinkSecret(ir)
	return ir, nil
}

func (e *Engine) fillAppLinkSecret(ir *IR) {
	if e.appLinkSecret == "" || ir.Meta.AppLink == nil || ir.Meta.AppLink.Secret != "" {
		return
	}
	ir.Meta.AppLink.Secret = e.appLinkSecret
}

// Render translates a card for one platform. OAuth cards take the
// native sign-in path when the renderer has one, otherwise they
// degrade to a plain card with an open-URL button.
func (e *Engine) Render(ctx context.Context, platform core.Platform, tenant string, card *core.MessageCard) (RenderOutput, error) {
	r, ok := e.renderers[platform]
	if !ok {
		return RenderOutput{}, &core.DomainError{
			Code:    core.ErrorCodeUnsupported,
			Message: "no card renderer for platform " + string(platform),
		}
	}

	if card.Kind == core.MessageCardOauth && card.OAuth != nil {
		return e.renderAuth(ctx, platform, tenant, r, card)
	}

	ir, err := e.Normalize(card)
	if err != nil {
		return RenderOutput{}, err
	}
	return e.render(ctx, platform, r, ir), nil
}

func (e *Engine) render(ctx context.Context, platform core.Platform, r Renderer, ir *IR) RenderOutput {
	var downgraded bool
	if target := r.TargetTier(); ir.Tier > target {
		ir.Tier = ir.Tier.Clamp(target)
		downgraded = true
	}

	out := r.Render(ir)
	if downgraded {
		out.Warnings = append([]string{"tier.downgraded"}, out.Warnings...)
	}
	e.observe(ctx, platform, ir.Tier, out)
	return out
}

func (e *Engine) renderAuth(ctx context.Context, platform core.Platform, tenant string, r Renderer, card *core.MessageCard) (RenderOutput, error) {
	spec := AuthSpecFromCard(card, card.OAuth)
	if err := e.ensureStartURL(ctx, tenant, spec); err != nil {
		e.log.Warn("oauth start url unavailable", "platform", platform, "provider", spec.Provider, "error", err)
	}

	if ar, ok := r.(AuthRenderer); ok {
		if out, ok := ar.RenderAuth(spec); ok {
			e.observe(ctx, platform, r.TargetTier(), out)
			return out, nil
		}
	}

	if spec.Fallback.URL == "" {
		return RenderOutput{}, &core.DomainError{
			Code:    core.ErrorCodeUnsupported,
			Message: "oauth card has no start url and no native renderer",
		}
	}
	fallback := FromCard(&core.MessageCard{
		Title: spec.Fallback.Title,
		Actions: []core.CardAction{
			{Type: core.CardActionOpenURL, Title: spec.Fallback.Title, URL: spec.Fallback.URL},
		},
	})
	out := e.render(ctx, platform, r, fallback)
	out.Warnings = append(out.Warnings, "auth.fallback_link")
	return out, nil
}

// ensureStartURL asks the OAuth broker for a hosted sign-in URL when
// the card does not carry one. An existing connection name is kept.
func (e *Engine) ensureStartURL(ctx context.Context, tenant string, spec *AuthSpec) error {
	if spec.StartURL != "" || e.oauth == nil {
		return nil
	}
	startURL, connectionName, err := e.oauth.StartAuth(ctx, tenant, spec)
	if err != nil {
		return err
	}
	spec.StartURL = startURL
	spec.Fallback.URL = startURL
	if spec.ConnectionName == "" {
		spec.ConnectionName = connectionName
	}
	return nil
}

func (e *Engine) observe(ctx context.Context, platform core.Platform, tier Tier, out RenderOutput) {
	if e.metrics == nil {
		return
	}
	if n := len(out.Warnings); n > 0 {
		e.metrics.RenderWarnings.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("platform", string(platform)),
			attribute.String("tier", tier.String()),
		))
	}
}
