// Package trader is the host process around the engine: it exposes the
// engine over gRPC, NATS and HTTP, checkpoints the carried token and
// broadcasts every decision to dashboard clients.
package trader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/engine"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
	"github.com/yourusername/quantlink-tick-engine/pkg/risk"
	"github.com/yourusername/quantlink-tick-engine/pkg/store"
	"github.com/yourusername/quantlink-tick-engine/pkg/transport"
)

// Trader wires the engine to its transports
type Trader struct {
	Config *config.TraderConfig

	// Core components
	Engine       *engine.Engine
	Store        *store.PebbleStore
	Risk         *risk.Monitor
	GRPC         *transport.GRPCServer
	NATS         *transport.NATSBridge
	APIServer    *APIServer
	ModelWatcher *ModelWatcher

	log *zap.Logger

	// 重启后第一个空 token 的 tick 从检查点恢复
	resumeMu sync.Mutex
	resume   bool

	mu      sync.RWMutex
	running bool
}

// NewTrader creates a new trader instance
func NewTrader(cfg *config.TraderConfig, log *zap.Logger) (*Trader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Trader{Config: cfg, log: log.Named("trader")}, nil
}

// Initialize builds the engine and every configured adapter
func (t *Trader) Initialize() error {
	t.log.Info("initializing",
		zap.String("trader_id", t.Config.System.TraderID),
		zap.String("mode", t.Config.System.Mode))

	eng, err := engine.FromConfig(t.Config, t.log)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	t.Engine = eng

	t.Risk = risk.NewMonitor(risk.MonitorConfig{
		EmergencyStopThreshold: t.Config.Risk.EmergencyStopThreshold,
		MaxOrdersPerSymbol:     t.Config.Risk.MaxOrdersPerSymbol,
		MaxAlerts:              t.Config.Risk.MaxAlerts,
	}, position.NewLimits(t.Config.Limits()), t.log)

	if t.Config.Store.Enabled {
		st, err := store.Open(t.Config.Store.Path)
		if err != nil {
			return err
		}
		t.Store = st
		t.resume = true
		t.log.Info("checkpoint store opened", zap.String("path", t.Config.Store.Path))
	}

	t.ModelWatcher = NewModelWatcher(ModelWatcherConfig{
		Config:   t.Config,
		OnReload: t.Engine.Reload,
		Log:      t.log,
	})

	if t.Config.Transport.GRPCAddr != "" {
		t.GRPC = transport.NewGRPCServer(t, t.log)
	}
	if t.Config.Transport.NATSAddr != "" {
		bridge, err := transport.NewNATSBridge(t.Config.Transport.NATSAddr, t.Config.Transport.SubjectPrefix, t, t.log)
		if err != nil {
			return err
		}
		t.NATS = bridge
	}
	if t.Config.API.Enabled {
		t.APIServer = NewAPIServer(t, t.log)
	}

	t.log.Info("initialized")
	return nil
}

// Run decides one tick and records it; it satisfies transport.Decider
func (t *Trader) Run(snap market.Snapshot) market.Decision {
	if snap.TraderData == "" {
		if token, ok := t.resumeToken(); ok {
			snap.TraderData = token
		}
	}

	d := t.Engine.Run(snap)

	t.Risk.Inspect(&snap, &d)
	if t.Risk.IsEmergencyStop() {
		// 紧急停止：只保留 token，不发单不转换
		d.Orders = map[market.Symbol][]market.Order{}
		d.Conversions = 0
	}

	if t.Store != nil {
		cp := store.Checkpoint{Token: d.TraderData, Timestamp: d.Timestamp}
		if err := t.Store.SaveCheckpoint(t.Config.System.TraderID, cp); err != nil {
			t.log.Error("checkpoint failed", zap.Error(err))
		}
		if err := t.Store.AppendDecision(t.Config.System.TraderID, d); err != nil {
			t.log.Error("journal failed", zap.Error(err))
		}
	}
	if t.APIServer != nil {
		t.APIServer.hub.Publish(d)
	}
	return d
}

// resumeToken returns the checkpointed token once, on the first tick after start
func (t *Trader) resumeToken() (string, bool) {
	t.resumeMu.Lock()
	defer t.resumeMu.Unlock()
	if !t.resume || t.Store == nil {
		return "", false
	}
	t.resume = false

	cp, ok, err := t.Store.LoadCheckpoint(t.Config.System.TraderID)
	if err != nil {
		t.log.Warn("checkpoint unreadable, starting fresh", zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	t.log.Info("resuming from checkpoint", zap.Int64("timestamp", cp.Timestamp), zap.Time("saved_at", cp.SavedAt))
	return cp.Token, true
}

// Start runs every adapter until ctx is cancelled or one of them fails
func (t *Trader) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("trader already running")
	}
	t.running = true
	t.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if t.GRPC != nil {
		g.Go(func() error {
			return t.GRPC.ListenAndServe(t.Config.Transport.GRPCAddr)
		})
	}
	if t.NATS != nil {
		if err := t.NATS.Start(); err != nil {
			return err
		}
	}
	if t.APIServer != nil {
		g.Go(func() error {
			if err := t.APIServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	t.log.Info("trader started")
	for _, line := range t.Engine.Status().Strategies {
		t.log.Info("  " + line)
	}

	g.Go(func() error {
		<-ctx.Done()
		t.Stop()
		return nil
	})
	return g.Wait()
}

// Stop stops all adapters and closes the store
func (t *Trader) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	t.log.Info("stopping trader")

	if t.APIServer != nil {
		if err := t.APIServer.Stop(); err != nil {
			t.log.Error("error stopping API server", zap.Error(err))
		}
	}
	if t.NATS != nil {
		if err := t.NATS.Close(); err != nil {
			t.log.Error("error closing NATS", zap.Error(err))
		}
	}
	if t.GRPC != nil {
		t.GRPC.Stop()
	}
	if t.Store != nil {
		if err := t.Store.Close(); err != nil {
			t.log.Error("error closing store", zap.Error(err))
		}
	}

	t.log.Info("trader stopped")
	return nil
}

// IsRunning returns whether the trader is running
func (t *Trader) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// GetStatus returns the trader status
func (t *Trader) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"running":   t.IsRunning(),
		"trader_id": t.Config.System.TraderID,
		"mode":      t.Config.System.Mode,
		"engine":    t.Engine.Status(),
		"store":     t.Store != nil,
		"grpc":      t.Config.Transport.GRPCAddr,
		"risk":      t.Risk.GetStats(),
	}
	if t.NATS != nil {
		handled, rejected := t.NATS.Stats()
		status["nats"] = map[string]int64{"handled": handled, "rejected": rejected}
	}
	return status
}

// ReloadModel rebuilds the strategy registry from configuration and model files
func (t *Trader) ReloadModel() error {
	return t.ModelWatcher.Reload()
}
