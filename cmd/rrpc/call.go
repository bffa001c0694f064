package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"lb-rpc/client"
	"lb-rpc/registry"
)

func (a *app) newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params...]",
		Short: "Send one JSON-RPC call through the pool",
		Example: `  rrpc call eth_blockNumber
  rrpc call eth_getBalance '"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"' '"latest"'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			etcd, err := a.etcd()
			if err != nil {
				return err
			}
			var source registry.Registry
			if etcd != nil {
				defer etcd.Close()
				source = etcd
			}

			p, err := a.provider(ctx, source, nil)
			if err != nil {
				return err
			}
			defer p.Stop()

			var result json.RawMessage
			if err := client.NewClient(p).Call(ctx, &result, args[0], parseParams(args[1:])...); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return err
		},
	}
}

// parseParams takes each argument as JSON, falling back to a plain string.
func parseParams(args []string) []any {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
			continue
		}
		params = append(params, arg)
	}
	return params
}
