package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/devblac/bridge-relay/internal/authority"
	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/engine"
	"github.com/devblac/bridge-relay/internal/health"
	"github.com/devblac/bridge-relay/internal/logging"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/devblac/bridge-relay/internal/relays"
	"github.com/devblac/bridge-relay/internal/sink"
	"github.com/devblac/bridge-relay/internal/storage"
	redisstore "github.com/devblac/bridge-relay/internal/storage/redis"
	"github.com/spf13/cobra"
)

var (
	flagOnce   bool
	flagStatus string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Tick every pipeline once, settle and exit")
	runCmd.Flags().StringVar(&flagStatus, "status", "", "Status HTTP address serving /healthz, /pipelines and /metrics (e.g., :8080)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay pipelines for the configured role",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.Global.LogLevel
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		log := logging.NewWithLevel(level, cfg.Global.LogFormat)

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var watermarks relay.WatermarkStore = store
		if useRedis(cfg) {
			rs := redisStore(cfg)
			defer rs.Close()
			if err := rs.Ping(ctx); err != nil {
				return fmt.Errorf("redis watermarks: %w", err)
			}
			watermarks = rs
		}

		auth, err := authority.Load(cfg.Authority)
		if err != nil {
			return fmt.Errorf("authority key: %w", err)
		}

		home, err := chain.Dial(ctx, "home", cfg.Networks.Home.RPCURL, cfg.Networks.Home.ChainID)
		if err != nil {
			return err
		}
		defer home.Close()
		foreign, err := chain.Dial(ctx, "foreign", cfg.Networks.Foreign.RPCURL, cfg.Networks.Foreign.ChainID)
		if err != nil {
			return err
		}
		defer foreign.Close()
		home.SetReceiptTimeout(cfg.Global.ReceiptTimeout)
		foreign.SetReceiptTimeout(cfg.Global.ReceiptTimeout)

		bindings, err := relays.LoadBindings(cfg.Contracts)
		if err != nil {
			return fmt.Errorf("contract bindings: %w", err)
		}

		sinks, err := buildSinks(cfg)
		if err != nil {
			return err
		}

		shared := relay.Deps{
			Log:        log,
			Metrics:    metrics.Init(),
			Watermarks: watermarks,
			Journal:    store,
		}
		pipelines, err := buildPipelines(ctx, cfg, relays.NewDeps(cfg, home, foreign, bindings, auth), shared, sinks)
		if err != nil {
			return err
		}

		if flagStatus != "" {
			srv := health.Serve(flagStatus, health.Router(health.Status{
				Checker: health.Checker{
					DBPing: watermarkPing(store, watermarks),
					RPC:    map[string]health.Pinger{"home": home, "foreign": foreign},
				},
				Pipelines: func() []relay.Snapshot {
					out := make([]relay.Snapshot, 0, len(pipelines))
					for _, p := range pipelines {
						out = append(out, p.Snapshot())
					}
					return out
				},
				Metrics: metrics.Handler(),
			}))
			log.Info("status server enabled", "addr", flagStatus)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, srv)
			}()
		}

		runnable := make([]engine.Pipeline, 0, len(pipelines))
		for _, p := range pipelines {
			runnable = append(runnable, p)
		}
		runner := engine.NewRunner(runnable, cfg.Global.PollInterval, log)

		log.Info("bridge relay started",
			"role", cfg.Global.Role,
			"authority", auth.Address.Hex(),
			"pipelines", len(pipelines),
			"poll_interval", cfg.Global.PollInterval,
		)
		if flagOnce {
			runner.RunOnce(ctx)
			return runner.Settle()
		}
		if err := runner.Run(ctx); err != nil {
			return err
		}
		log.Info("bridge relay stopped")
		return nil
	},
}

func buildPipelines(ctx context.Context, cfg *config.Config, d relays.Deps, shared relay.Deps, sinks map[string]sink.Sender) ([]*relay.Pipeline, error) {
	var out []*relay.Pipeline
	for _, r := range cfg.Pipelines() {
		pc, err := relays.Pipeline(r.Name, d)
		if err != nil {
			return nil, err
		}
		where, err := relay.CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("relay %s predicates: %w", r.Name, err)
		}
		pc.Where = where
		pc.MaxBatch = r.MaxBatch
		pc.EnrichLimit = cfg.Global.EnrichFailureLimit

		deps := shared
		deps.Sinks = nil
		for _, id := range r.Sinks {
			deps.Sinks = append(deps.Sinks, sinks[id])
		}

		p, err := relay.New(ctx, pc, deps)
		if err != nil {
			return nil, err
		}
		shared.Log.Debug("pipeline ready", "pipeline", r.Name, "max_batch", r.MaxBatch, "where", len(where), "sinks", len(deps.Sinks))
		out = append(out, p)
	}
	return out, nil
}

func buildSinks(cfg *config.Config) (map[string]sink.Sender, error) {
	sinks := make(map[string]sink.Sender, len(cfg.Sinks))
	for _, s := range cfg.Sinks {
		sender, err := sink.New(s.Type, s.Endpoint(), s.Method, s.Template)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		sinks[s.ID] = sender
	}
	return sinks, nil
}

func useRedis(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Storage.Watermarks, "redis")
}

func redisStore(cfg *config.Config) *redisstore.Store {
	return redisstore.Open(cfg.Storage.RedisAddr, cfg.Storage.RedisDB)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// watermarkPing checks the journal and, when it is a separate store, the watermark backend.
func watermarkPing(journal pinger, watermarks relay.WatermarkStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := journal.Ping(ctx); err != nil {
			return err
		}
		if p, ok := watermarks.(pinger); ok && p != journal {
			return p.Ping(ctx)
		}
		return nil
	}
}
