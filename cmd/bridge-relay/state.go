package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagPipeline string
	flagLimit    int
)

func init() {
	stateCmd.Flags().StringVar(&flagPipeline, "pipeline", "", "Only show outcomes for this pipeline")
	stateCmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of recent outcomes to show")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show stored watermarks and recent outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var marks relay.WatermarkStore = store
		if useRedis(cfg) {
			rs := redisStore(cfg)
			defer rs.Close()
			marks = rs
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PIPELINE\tRESUME BLOCK")
		for _, r := range cfg.Pipelines() {
			block, ok, err := marks.GetWatermark(ctx, r.Name)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(w, "%s\t-\n", r.Name)
				continue
			}
			fmt.Fprintf(w, "%s\t%d\n", r.Name, block)
		}
		fmt.Fprintln(w)

		outs, err := store.RecentOutcomes(ctx, flagPipeline, flagLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "TIME\tPIPELINE\tEVENT TX\tBLOCK\tSTATUS\tRESULT\tATTEMPTS\tERROR")
		for _, o := range outs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
				o.CreatedAt.Format(time.DateTime), o.Pipeline, o.EventTx, o.Block, o.Status, o.ResultTx, o.Attempts, o.Error)
		}
		return w.Flush()
	},
}
