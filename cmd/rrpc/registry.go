package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lb-rpc/registry"
)

func (a *app) newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the etcd endpoint pool",
	}
	cmd.AddCommand(a.newRegistryAddCmd(), a.newRegistryRmCmd(), a.newRegistryLsCmd())
	return cmd
}

func (a *app) requireEtcd() (*registry.EtcdRegistry, error) {
	reg, err := a.etcd()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.New("RRPC_ETCD_ENDPOINTS is not set")
	}
	return reg, nil
}

func (a *app) newRegistryAddCmd() *cobra.Command {
	var weight int
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add an endpoint to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.requireEtcd()
			if err != nil {
				return err
			}
			defer reg.Close()
			// no lease: the entry stays until removed
			return reg.Register(cmd.Context(), a.cfg.RegistryPool, registry.Node{URL: args[0], Weight: weight}, 0)
		},
	}
	cmd.Flags().IntVar(&weight, "weight", 0, "Relative weight (0 = unweighted)")
	return cmd
}

func (a *app) newRegistryRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <url>",
		Short: "Remove an endpoint from the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.requireEtcd()
			if err != nil {
				return err
			}
			defer reg.Close()
			return reg.Deregister(cmd.Context(), a.cfg.RegistryPool, args[0])
		},
	}
}

func (a *app) newRegistryLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the endpoints of the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.requireEtcd()
			if err != nil {
				return err
			}
			defer reg.Close()

			nodes, err := reg.Discover(cmd.Context(), a.cfg.RegistryPool)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tWEIGHT")
			for _, n := range nodes {
				fmt.Fprintf(w, "%s\t%d\n", n.URL, n.Weight)
			}
			return w.Flush()
		},
	}
}
