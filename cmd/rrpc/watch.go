package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lb-rpc/metrics"
	"lb-rpc/registry"
)

func (a *app) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the health monitor and expose its metrics",
		Long:  "watch keeps a provider running, follows the etcd pool when configured and serves Prometheus metrics on RRPC_METRICS_ADDR.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			etcd, err := a.etcd()
			if err != nil {
				return err
			}
			var source registry.Registry
			if etcd != nil {
				defer etcd.Close()
				source = etcd
			}

			p, err := a.provider(ctx, source, m)
			if err != nil {
				return err
			}
			defer p.Stop()

			if source != nil {
				go p.Follow(ctx, source.Watch(ctx, a.cfg.RegistryPool))
			}

			if a.cfg.MetricsAddr != "" {
				srv := &http.Server{
					Addr:              a.cfg.MetricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.logger.Info("watching", zap.Strings("valid", registry.URLs(p.Valid())))
			<-ctx.Done()
			return nil
		},
	}
}
