package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lb-rpc/middleware"
	"lb-rpc/registry"
	"lb-rpc/server"
)

func (a *app) newDevnodeCmd() *cobra.Command {
	var (
		addr      string
		advertise string
		height    uint64
		chainID   uint64
		every     time.Duration
		fault     string
		weight    int
	)
	cmd := &cobra.Command{
		Use:   "devnode",
		Short: "Run a local JSON-RPC node for testing failover",
		Example: `  rrpc devnode --addr 127.0.0.1:8545 --height 100 --block-time 2s
  rrpc devnode --addr 127.0.0.1:8546 --fault garbage`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := server.ParseFault(fault)
			if err != nil {
				return err
			}

			chain := server.NewChain(chainID, height)
			s := server.NewDevNode(chain, a.logger.Named("devnode"))
			s.Use(middleware.Logging(a.logger.Named("devnode")))
			s.SetFault(f)

			etcd, err := a.etcd()
			if err != nil {
				return err
			}
			if etcd != nil {
				defer etcd.Close()
				if advertise == "" {
					advertise = "http://" + addr
				}
				s.Advertise(etcd, a.cfg.RegistryPool, registry.Node{URL: advertise, Weight: weight})
			}

			ctx := cmd.Context()
			if every > 0 {
				go func() {
					ticker := time.NewTicker(every)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							chain.Advance(1)
						}
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- s.ListenAndServe(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			a.logger.Info("dev node stopped", zap.Uint64("height", chain.Height()))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8545", "Listen address")
	cmd.Flags().StringVar(&advertise, "advertise", "", "URL registered in etcd (default http://<addr>)")
	cmd.Flags().Uint64Var(&height, "height", 1, "Initial block height")
	cmd.Flags().Uint64Var(&chainID, "chain-id", 1337, "Chain id")
	cmd.Flags().DurationVar(&every, "block-time", 0, "Advance the height every interval (0 = never)")
	cmd.Flags().StringVar(&fault, "fault", "none", "Fault mode: none, garbage, hang, rpc_error")
	cmd.Flags().IntVar(&weight, "weight", 0, "Weight registered in etcd")
	return cmd
}
