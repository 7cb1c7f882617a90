// Package cmd defines the Cobra subcommands (gateway, egress, dlq)
// and bridges configuration to the runtime packages beneath it.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greentic-ai/greentic-messaging/internal/cmd/gateway"
	"github.com/greentic-ai/greentic-messaging/internal/config"
)

type GatewayInjector func() (*gateway.Gateway, func(), error)

func NewGatewayCommand(conf *config.Config, newGateway GatewayInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Start the webhook gateway that normalizes platform callbacks onto the bus",
		Example: "greentic-messaging gateway --ingress-bind=:8299 --bus-url=nats://127.0.0.1:4222",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, cleanup, err := newGateway()
			if err != nil {
				return fmt.Errorf("failed to initialize gateway: %w", err)
			}
			defer cleanup()

			cfg := gateway.Config{
				Env:                  conf.Env(),
				BusURL:               conf.BusURL(),
				Bind:                 conf.IngressBind(),
				HMACSecret:           conf.IngressHMACSecret(),
				HMACHeader:           conf.IngressHMACHeader(),
				BearerToken:          conf.IngressBearerToken(),
				AllowedOrigins:       conf.IngressAllowedOrigins(),
				IPRPS:                conf.RatelimitIPRPS(),
				IPBurst:              conf.RatelimitIPBurst(),
				IdempotencyNamespace: conf.IdempotencyNamespace(),
				IdempotencyTTL:       conf.IdempotencyTTL(),
				PacksRoot:            conf.PacksRoot(),
				DefaultTeam:          conf.TenantDefaultTeam(),
			}

			return gw.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.CommonOptions); err != nil {
		return nil, err
	}
	if err := conf.BindFlags(cmd.Flags(), config.GatewayOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
