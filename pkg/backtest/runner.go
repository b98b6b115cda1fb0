package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Source yields snapshots until io.EOF
type Source interface {
	Next() (market.Snapshot, error)
}

// sliceSource replays an in-memory slice
type sliceSource struct {
	snaps []market.Snapshot
	i     int
}

// FromSlice turns loaded snapshots into a Source
func FromSlice(snaps []market.Snapshot) Source {
	return &sliceSource{snaps: snaps}
}

func (s *sliceSource) Next() (market.Snapshot, error) {
	if s.i >= len(s.snaps) {
		return market.Snapshot{}, io.EOF
	}
	s.i++
	return s.snaps[s.i-1], nil
}

// RunnerConfig 回放参数
type RunnerConfig struct {
	// CarryToken 用上一 tick 返回的 token 覆盖录制的 trader_data，
	// 与宿主行为一致
	CarryToken bool
	// Timeout bounds each remote call; 0 means none
	Timeout time.Duration
	// StopOnError aborts the replay on the first failed snapshot
	StopOnError bool
}

// Runner feeds snapshots through a decider and collects statistics
type Runner struct {
	cfg     RunnerConfig
	decider Decider
	stats   *Statistics
	log     *zap.Logger

	// Output receives one JSON decision per line when set
	Output io.Writer
}

// NewRunner creates a runner
func NewRunner(cfg RunnerConfig, decider Decider, stats *Statistics, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, decider: decider, stats: stats, log: log.Named("replay")}
}

// Run replays src to exhaustion or until ctx is cancelled
func (r *Runner) Run(ctx context.Context, src Source) (*Result, error) {
	var enc *json.Encoder
	if r.Output != nil {
		enc = json.NewEncoder(r.Output)
	}

	token := ""
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return r.stats.GenerateReport(), err
		}

		snap, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return r.stats.GenerateReport(), fmt.Errorf("read snapshot %d: %w", n, err)
		}
		if r.cfg.CarryToken {
			snap.TraderData = token
		}

		start := time.Now()
		d, err := r.decide(ctx, snap)
		took := time.Since(start)
		if err != nil {
			r.stats.OnError()
			r.log.Warn("decide failed", zap.Int64("timestamp", snap.Timestamp), zap.Error(err))
			if r.cfg.StopOnError {
				return r.stats.GenerateReport(), fmt.Errorf("snapshot %d: %w", snap.Timestamp, err)
			}
			continue
		}

		token = d.TraderData
		r.stats.OnDecision(&snap, &d, took)

		if enc != nil {
			if err := enc.Encode(d); err != nil {
				return r.stats.GenerateReport(), fmt.Errorf("write decision: %w", err)
			}
		}
		if n > 0 && n%1000 == 0 {
			r.log.Info("progress", zap.Int("ticks", n), zap.Int64("timestamp", snap.Timestamp))
		}
	}

	res := r.stats.GenerateReport()
	r.log.Info("replay finished",
		zap.Int("ticks", res.Ticks),
		zap.Int("orders", res.TotalOrders),
		zap.Int("errors", res.Errors),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

func (r *Runner) decide(ctx context.Context, snap market.Snapshot) (market.Decision, error) {
	if r.cfg.Timeout <= 0 {
		return r.decider.Decide(ctx, snap)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.decider.Decide(ctx, snap)
}
