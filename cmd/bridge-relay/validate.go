package main

import (
	"context"
	"fmt"
	"time"

	"github.com/devblac/bridge-relay/internal/authority"
	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/spf13/cobra"
)

const dialTimeout = 10 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, load the authority key and ping both networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, role %s)\n", cfg.Version, cfg.Global.Role)

		auth, err := authority.Load(cfg.Authority)
		if err != nil {
			return fmt.Errorf("authority key: %w", err)
		}
		fmt.Fprintf(out, "- authority %s OK\n", auth.Address.Hex())

		failures := 0
		for _, n := range []struct {
			name string
			net  config.Network
		}{
			{"home", cfg.Networks.Home},
			{"foreign", cfg.Networks.Foreign},
		} {
			id, err := pingNetwork(cmd.Context(), n.name, n.net)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- network %s: ERROR %v\n", n.name, err)
				continue
			}
			fmt.Fprintf(out, "- network %s: chainId %s OK\n", n.name, id)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d network(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingNetwork(ctx context.Context, name string, n config.Network) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	cli, err := chain.Dial(ctx, name, n.RPCURL, n.ChainID)
	if err != nil {
		return "", err
	}
	defer cli.Close()
	if err := cli.Ping(ctx); err != nil {
		return "", err
	}
	return cli.ChainID().String(), nil
}
