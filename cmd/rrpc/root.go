package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lb-rpc/config"
	"lb-rpc/metrics"
	"lb-rpc/registry"
	"lb-rpc/transport"
)

// app is the state shared by all subcommands, filled in by the root PreRun.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rrpc",
		Short:         "Load-balanced JSON-RPC transport",
		Long:          "rrpc sends JSON-RPC calls through a health-checked, load-balanced pool of nodes.\nConfiguration comes from RRPC_* environment variables or a .env file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.AddCommand(
		a.newCallCmd(),
		a.newWatchCmd(),
		a.newDevnodeCmd(),
		a.newRegistryCmd(),
	)
	return root
}

// etcd returns the configured registry, nil when RRPC_ETCD_ENDPOINTS is unset.
func (a *app) etcd() (*registry.EtcdRegistry, error) {
	if len(a.cfg.EtcdEndpoints) == 0 {
		return nil, nil
	}
	return registry.NewEtcdRegistry(a.cfg.EtcdEndpoints, a.logger.Named("etcd"))
}

// provider builds and starts a provider. With a registry configured, the
// initial node list comes from it.
func (a *app) provider(ctx context.Context, reg registry.Registry, m *metrics.Metrics) (*transport.Provider, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	var nodes []registry.Node
	if reg != nil {
		discovered, err := reg.Discover(ctx, a.cfg.RegistryPool)
		if err != nil {
			return nil, fmt.Errorf("discover pool %s: %w", a.cfg.RegistryPool, err)
		}
		if len(discovered) > 0 {
			nodes = discovered
		}
	}

	p, err := transport.NewProvider(a.cfg.Transport(nodes),
		transport.WithLogger(a.logger),
		transport.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
