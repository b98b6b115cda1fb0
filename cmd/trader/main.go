package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/logging"
	"github.com/yourusername/quantlink-tick-engine/pkg/trader"
)

const (
	appName    = "QuantlinkTickEngine"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/trader.yaml", "Configuration file path")
	envFile    = flag.String("env", "", "Optional .env file with TICK_* overrides")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	statusTick = flag.Duration("status-interval", 30*time.Second, "Status log interval, 0 to disable")
	version    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.LoadTraderConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// 环境变量覆盖后重新校验
	cfg.ApplyEnv(*envFile)
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting",
		zap.String("app", appName),
		zap.String("version", appVersion),
		zap.String("config", *configFile))
	printConfigSummary(log, cfg)

	t, err := trader.NewTrader(cfg, log)
	if err != nil {
		log.Fatal("failed to create trader", zap.Error(err))
	}
	if err := t.Initialize(); err != nil {
		log.Fatal("failed to initialize trader", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *statusTick > 0 {
		go printStatusPeriodically(ctx, log, t, *statusTick)
	}

	if err := t.Start(ctx); err != nil {
		log.Error("trader exited with error", zap.Error(err))
		t.Stop()
		os.Exit(1)
	}

	st := t.Engine.Status()
	log.Info("trader stopped",
		zap.Uint64("ticks", st.Ticks),
		zap.Uint64("decode_errors", st.DecodeErrors),
		zap.Uint64("over_budget", st.OverBudget))
}

func printConfigSummary(log *zap.Logger, cfg *config.TraderConfig) {
	log.Info("configuration",
		zap.String("trader_id", cfg.System.TraderID),
		zap.String("mode", cfg.System.Mode),
		zap.Int("history_size", cfg.Engine.HistorySize),
		zap.Int("warmup_ticks", cfg.Engine.WarmupTicks),
		zap.Duration("tick_budget", cfg.Engine.TickBudget),
		zap.Int("products", len(cfg.Products)))
	for i, s := range cfg.GetEnabledStrategies() {
		log.Info("strategy",
			zap.Int("index", i+1),
			zap.String("id", s.ID),
			zap.String("type", s.Type),
			zap.Strings("symbols", s.Symbols))
	}
	log.Info("transport",
		zap.String("grpc", cfg.Transport.GRPCAddr),
		zap.String("nats", cfg.Transport.NATSAddr),
		zap.String("subject_prefix", cfg.Transport.SubjectPrefix),
		zap.Bool("api", cfg.API.Enabled),
		zap.Bool("store", cfg.Store.Enabled))
}

func printStatusPeriodically(ctx context.Context, log *zap.Logger, t *trader.Trader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := t.Engine.Status()
			log.Info("status",
				zap.Uint64("ticks", st.Ticks),
				zap.Int64("last_timestamp", st.LastTimestamp),
				zap.Int("last_orders", st.LastOrders),
				zap.Duration("last_duration", st.LastDuration),
				zap.String("phase", st.Phase))
		}
	}
}
