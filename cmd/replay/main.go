package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/backtest"
	"github.com/yourusername/quantlink-tick-engine/pkg/client"
	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/engine"
	"github.com/yourusername/quantlink-tick-engine/pkg/logging"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
)

var (
	configFile = flag.String("config", "./config/trader.yaml", "Configuration file path")
	input      = flag.String("input", "", "Snapshot JSON-lines file or directory of *.jsonl (default stdin)")
	output     = flag.String("output", "", "Decision JSON-lines output file (default stdout, '-' disables)")
	report     = flag.String("report", "", "Write a markdown report to this file")
	jsonReport = flag.String("json-report", "", "Write a JSON report to this file")
	grpcAddr   = flag.String("grpc", "", "Replay against a remote engine over gRPC instead of in-process")
	natsAddr   = flag.String("nats", "", "Replay against a remote engine over NATS instead of in-process")
	recorded   = flag.Bool("recorded-token", false, "Use the recorded trader_data instead of carrying the returned token")
	stopOnErr  = flag.Bool("stop-on-error", false, "Abort on the first failed snapshot")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadTraderConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.System.Mode = "replay"

	// 决策写到 stdout 时日志走 stderr
	log, err := logging.NewWithOutput(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("replay failed", zap.Error(err))
	}
}

func run(cfg *config.TraderConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	decider, closeFn, err := newDecider(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	src, closeSrc, err := openSource(*input)
	if err != nil {
		return err
	}
	defer closeSrc()

	stats := backtest.NewStatistics(position.NewLimits(cfg.Limits()), cfg.Engine.TickBudget)
	runner := backtest.NewRunner(backtest.RunnerConfig{
		CarryToken:  !*recorded,
		Timeout:     cfg.Transport.RequestTimeout,
		StopOnError: *stopOnErr,
	}, decider, stats, log)

	switch *output {
	case "-":
	case "":
		runner.Output = os.Stdout
	default:
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		runner.Output = f
	}

	res, err := runner.Run(ctx, src)
	if err != nil {
		return err
	}

	if *report != "" {
		if err := writeFile(*report, func(w io.Writer) error { return backtest.WriteMarkdown(w, res) }); err != nil {
			return err
		}
	}
	if *jsonReport != "" {
		if err := writeFile(*jsonReport, func(w io.Writer) error { return backtest.WriteJSON(w, res) }); err != nil {
			return err
		}
	}
	return nil
}

// newDecider picks the in-process engine or a remote one
func newDecider(cfg *config.TraderConfig, log *zap.Logger) (backtest.Decider, func(), error) {
	switch {
	case *grpcAddr != "":
		c, err := client.NewEngineClient(*grpcAddr)
		if err != nil {
			return nil, nil, err
		}
		log.Info("replaying over gRPC", zap.String("addr", *grpcAddr))
		return backtest.DeciderFunc(func(ctx context.Context, snap market.Snapshot) (market.Decision, error) {
			d, err := c.Decide(ctx, &snap)
			if err != nil {
				return market.Decision{}, err
			}
			return *d, nil
		}), func() { c.Close() }, nil

	case *natsAddr != "":
		c, err := client.NewNATSClient(*natsAddr, cfg.Transport.SubjectPrefix)
		if err != nil {
			return nil, nil, err
		}
		log.Info("replaying over NATS", zap.String("url", *natsAddr))
		return backtest.DeciderFunc(func(ctx context.Context, snap market.Snapshot) (market.Decision, error) {
			d, _, err := c.Decide(ctx, &snap)
			if err != nil {
				return market.Decision{}, err
			}
			return *d, nil
		}), func() { c.Close() }, nil
	}

	eng, err := engine.FromConfig(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return backtest.Local(eng), func() {}, nil
}

func openSource(path string) (backtest.Source, func(), error) {
	if path == "" {
		return backtest.NewSnapshotReader(os.Stdin), func() {}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		snaps, err := backtest.LoadSnapshots(path)
		if err != nil {
			return nil, nil, err
		}
		return backtest.FromSlice(snaps), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return backtest.NewSnapshotReader(f), func() { f.Close() }, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
