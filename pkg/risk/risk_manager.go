// Package risk provides post-decision risk checks for the host: it compares
// every outgoing decision with the exchange position rules and can latch an
// emergency stop that suppresses orders.
package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
)

// LimitType represents different types of risk limits
type LimitType int

const (
	// LimitNet 持仓加本 tick 净挂单超限（引擎不变量被破坏）
	LimitNet LimitType = iota
	// LimitGross 持仓加同方向挂单总量超限，交易所会拒单
	LimitGross
	// LimitOrderCount 单品种订单数过多
	LimitOrderCount
)

// String returns the limit name
func (t LimitType) String() string {
	switch t {
	case LimitNet:
		return "net_position"
	case LimitGross:
		return "gross_position"
	case LimitOrderCount:
		return "order_count"
	}
	return fmt.Sprintf("LimitType(%d)", int(t))
}

// Breach is one violated rule of one decision
type Breach struct {
	Symbol market.Symbol
	Type   LimitType
	Value  int
	Limit  int
}

// Alert represents a risk alert
type Alert struct {
	Time         time.Time     `json:"time"`
	Timestamp    int64         `json:"timestamp"` // tick timestamp
	Level        string        `json:"level"`     // "warning", "critical"
	Type         string        `json:"type"`
	Symbol       market.Symbol `json:"symbol"`
	Message      string        `json:"message"`
	CurrentValue int           `json:"current_value"`
	LimitValue   int           `json:"limit_value"`
}

// Check returns the breaches of d against limits, ordered by symbol.
// maxOrders <= 0 disables the order count rule.
func Check(limits position.Limits, snap *market.Snapshot, d *market.Decision, maxOrders int) []Breach {
	// 转换只作用于带转换报价的唯一品种
	var convSym market.Symbol
	if d.Conversions != 0 && len(snap.Conversions) == 1 {
		for sym := range snap.Conversions {
			convSym = sym
		}
	}

	symbols := make([]market.Symbol, 0, len(d.Orders))
	for sym := range d.Orders {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	var out []Breach
	for _, sym := range symbols {
		orders := d.Orders[sym]
		buys, sells := 0, 0
		for _, o := range orders {
			if o.Quantity > 0 {
				buys += o.Quantity
			} else {
				sells -= o.Quantity
			}
		}

		pos := snap.Positions[sym]
		if sym == convSym {
			pos += d.Conversions
		}
		limit := limits.Of(sym)

		if net := pos + buys - sells; net > limit || net < -limit {
			out = append(out, Breach{Symbol: sym, Type: LimitNet, Value: net, Limit: limit})
		}
		if pos+buys > limit {
			out = append(out, Breach{Symbol: sym, Type: LimitGross, Value: pos + buys, Limit: limit})
		} else if pos-sells < -limit {
			out = append(out, Breach{Symbol: sym, Type: LimitGross, Value: pos - sells, Limit: limit})
		}
		if maxOrders > 0 && len(orders) > maxOrders {
			out = append(out, Breach{Symbol: sym, Type: LimitOrderCount, Value: len(orders), Limit: maxOrders})
		}
	}
	return out
}

// MonitorConfig 风控参数
type MonitorConfig struct {
	EmergencyStopThreshold int // critical 告警累计次数达到后触发紧急停止，0 表示不触发
	MaxOrdersPerSymbol     int
	MaxAlerts              int // 保留的告警条数
}

// Monitor records alerts for every decision the host sends out
type Monitor struct {
	cfg    MonitorConfig
	limits position.Limits
	log    *zap.Logger

	mu            sync.RWMutex
	alerts        []*Alert
	criticalCount int
	warningCount  int
	checked       int64
	emergencyStop bool
}

// NewMonitor creates a risk monitor
func NewMonitor(cfg MonitorConfig, limits position.Limits, log *zap.Logger) *Monitor {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		cfg:    cfg,
		limits: limits,
		log:    log.Named("risk"),
		alerts: make([]*Alert, 0, 64),
	}
}

// Inspect checks one decision and records its alerts
func (m *Monitor) Inspect(snap *market.Snapshot, d *market.Decision) []*Alert {
	breaches := Check(m.limits, snap, d, m.cfg.MaxOrdersPerSymbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked++
	if len(breaches) == 0 {
		return nil
	}

	now := time.Now()
	out := make([]*Alert, 0, len(breaches))
	for _, b := range breaches {
		a := &Alert{
			Time:         now,
			Timestamp:    d.Timestamp,
			Level:        "warning",
			Type:         b.Type.String(),
			Symbol:       b.Symbol,
			CurrentValue: b.Value,
			LimitValue:   b.Limit,
		}
		if b.Type == LimitNet {
			a.Level = "critical"
			m.criticalCount++
		} else {
			m.warningCount++
		}
		a.Message = fmt.Sprintf("%s %s %d exceeds %d", b.Symbol, a.Type, b.Value, b.Limit)
		out = append(out, a)
		m.handleAlert(a)
	}

	m.alerts = append(m.alerts, out...)
	if len(m.alerts) > m.cfg.MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.cfg.MaxAlerts:]
	}

	if !m.emergencyStop && m.cfg.EmergencyStopThreshold > 0 && m.criticalCount >= m.cfg.EmergencyStopThreshold {
		m.emergencyStop = true
		m.log.Error("EMERGENCY STOP: orders suppressed", zap.Int("critical_alerts", m.criticalCount))
	}
	return out
}

// handleAlert logs an alert; caller holds mu
func (m *Monitor) handleAlert(a *Alert) {
	fields := []zap.Field{
		zap.Int64("timestamp", a.Timestamp),
		zap.String("symbol", string(a.Symbol)),
		zap.String("type", a.Type),
		zap.Int("current", a.CurrentValue),
		zap.Int("limit", a.LimitValue),
	}
	if a.Level == "critical" {
		m.log.Error("risk alert", fields...)
		return
	}
	m.log.Warn("risk alert", fields...)
}

// IsEmergencyStop returns whether emergency stop is active
func (m *Monitor) IsEmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

// ResetEmergencyStop clears the latch and the critical counter
func (m *Monitor) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = false
	m.criticalCount = 0
	m.log.Info("emergency stop reset")
}

// GetAlerts returns the newest alerts, optionally filtered by level
func (m *Monitor) GetAlerts(level string, limit int) []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Alert, 0)
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if level != "" && m.alerts[i].Level != level {
			continue
		}
		out = append(out, m.alerts[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetStats returns monitor counters
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"checked":        m.checked,
		"critical":       m.criticalCount,
		"warnings":       m.warningCount,
		"emergency_stop": m.emergencyStop,
	}
}
