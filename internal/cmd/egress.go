package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greentic-ai/greentic-messaging/internal/cmd/worker"
	"github.com/greentic-ai/greentic-messaging/internal/config"
)

type WorkerInjector func() (*worker.Worker, func(), error)

func NewEgressCommand(conf *config.Config, newWorker WorkerInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "egress",
		Short:   "Start the egress worker that renders and delivers outbound messages",
		Example: "greentic-messaging egress --egress-tenant=acme --egress-platforms=slack,telegram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := newWorker()
			if err != nil {
				return fmt.Errorf("failed to initialize egress worker: %w", err)
			}
			defer cleanup()

			cfg := worker.Config{
				BusURL:          conf.BusURL(),
				Bind:            conf.EgressBind(),
				Tenant:          conf.EgressTenant(),
				Platforms:       conf.EgressPlatforms(),
				MaxAckPending:   conf.EgressMaxAckPending(),
				PacksRoot:       conf.PacksRoot(),
				RPS:             conf.RatelimitRPS(),
				Burst:           conf.RatelimitBurst(),
				TenantOverrides: conf.RatelimitTenantOverrides(),
				Endpoints:       conf.EgressEndpoints(),
				OAuthURL:        conf.OAuthURL(),
				SecretsURL:      conf.SecretsURL(),
				AppLinkSecret:   conf.AppLinkSecret(),
				AppLinkAllow:    conf.AppLinkAllow(),
			}

			return wk.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.CommonOptions); err != nil {
		return nil, err
	}
	if err := conf.BindFlags(cmd.Flags(), config.EgressOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
