// Package main is the entry point for the greentic-messaging binary.
// It supports three subcommands:
//
//   - gateway: runs the webhook ingress surface
//   - egress:  runs the per-tenant delivery workers
//   - dlq:     inspects and replays dead-lettered messages
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greentic-ai/greentic-messaging/internal/cmd"
	"github.com/greentic-ai/greentic-messaging/internal/cmd/gateway"
	"github.com/greentic-ai/greentic-messaging/internal/cmd/worker"
	"github.com/greentic-ai/greentic-messaging/internal/config"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and executes the root Cobra command.
func run(ctx context.Context) error {
	conf, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rootCmd, err := newCmd(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return rootCmd.ExecuteContext(ctx)
}

// newCmd constructs the root Cobra command and registers the gateway,
// egress, and dlq subcommands.
func newCmd(conf *config.Config) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "greentic-messaging",
		Short:         "Greentic Messaging: the multi-platform message plane for tenant flows.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	gatewayCmd, err := cmd.NewGatewayCommand(conf, func() (*gateway.Gateway, func(), error) {
		return gateway.New(), func() {}, nil
	})
	if err != nil {
		return nil, err
	}

	egressCmd, err := cmd.NewEgressCommand(conf, func() (*worker.Worker, func(), error) {
		return worker.New(), func() {}, nil
	})
	if err != nil {
		return nil, err
	}

	dlqCmd, err := cmd.NewDLQCommand(conf)
	if err != nil {
		return nil, err
	}

	c.AddCommand(gatewayCmd, egressCmd, dlqCmd)

	return c, nil
}
