package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/pricing"
)

// TraderConfig is the complete configuration for the tick engine and its host adapters
type TraderConfig struct {
	System     SystemConfig         `yaml:"system"`
	Engine     EngineConfig         `yaml:"engine"`
	Products   []ProductConfig      `yaml:"products"`
	Strategies []StrategyItemConfig `yaml:"strategies"`
	Baskets    []pricing.Basket     `yaml:"baskets,omitempty"`
	Transport  TransportConfig      `yaml:"transport"`
	API        APIConfig            `yaml:"api"`
	Store      StoreConfig          `yaml:"store"`
	Risk       RiskConfig           `yaml:"risk"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// SystemConfig contains system-level configuration
type SystemConfig struct {
	TraderID string `yaml:"trader_id"`
	Mode     string `yaml:"mode"` // live, replay
}

// EngineConfig 引擎参数
type EngineConfig struct {
	HistorySize int           `yaml:"history_size"` // 环形缓冲容量 N
	WarmupTicks int           `yaml:"warmup_ticks"` // 进入 steady 所需的 tick 数
	TickBudget  time.Duration `yaml:"tick_budget"`  // 超出仅告警
}

// ProductConfig 品种及其持仓上限
type ProductConfig struct {
	Symbol string `yaml:"symbol"`
	Limit  int    `yaml:"limit"`
}

// StrategyItemConfig binds one strategy type to one or more symbols
type StrategyItemConfig struct {
	ID         string                 `yaml:"id"`         // 策略唯一标识
	Type       string                 `yaml:"type"`       // 策略类型
	Enabled    bool                   `yaml:"enabled"`    // 是否启用
	Symbols    []string               `yaml:"symbols"`    // 绑定品种（按顺序执行）
	Parameters map[string]interface{} `yaml:"parameters"` // 策略参数
	ModelFile  string                 `yaml:"model_file"` // 模型文件，覆盖 parameters 中的同名参数
}

// TransportConfig contains host transport configuration
type TransportConfig struct {
	NATSAddr       string        `yaml:"nats_addr"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// APIConfig contains HTTP REST API configuration
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig 状态检查点
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RiskConfig 宿主侧风控：检查每个发出的决策
type RiskConfig struct {
	EmergencyStopThreshold int `yaml:"emergency_stop_threshold"` // critical 告警次数，0 不触发
	MaxOrdersPerSymbol     int `yaml:"max_orders_per_symbol"`    // 0 不限制
	MaxAlerts              int `yaml:"max_alerts"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	File       string `yaml:"file"`        // log file path, empty for stdout only
	JSONFormat bool   `yaml:"json_format"` // use JSON format
}

// ValidStrategyTypes lists the strategy types the registry can build
var ValidStrategyTypes = []string{
	"take_liquidity", "make_market", "market_maker", "basket_arb", "option_hedge", "conversion_arb",
}

// LoadTraderConfig loads configuration from a YAML file
func LoadTraderConfig(filepath string) (*TraderConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config TraderConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration and fills defaults
func (c *TraderConfig) Validate() error {
	if c.System.Mode == "" {
		c.System.Mode = "live"
	}
	if c.System.Mode != "live" && c.System.Mode != "replay" {
		return fmt.Errorf("system.mode must be 'live' or 'replay'")
	}
	if c.System.TraderID == "" {
		c.System.TraderID = "tick-engine"
	}

	if c.Engine.HistorySize == 0 {
		c.Engine.HistorySize = 10
	}
	if c.Engine.HistorySize < 0 {
		return fmt.Errorf("engine.history_size must be positive")
	}
	if c.Engine.WarmupTicks == 0 {
		c.Engine.WarmupTicks = c.Engine.HistorySize - 1
	}
	if c.Engine.WarmupTicks < 0 {
		return fmt.Errorf("engine.warmup_ticks must not be negative")
	}

	if len(c.Products) == 0 {
		return fmt.Errorf("products cannot be empty")
	}
	products := make(map[string]bool, len(c.Products))
	for i, p := range c.Products {
		if p.Symbol == "" {
			return fmt.Errorf("products[%d].symbol is required", i)
		}
		if products[p.Symbol] {
			return fmt.Errorf("duplicate product: %s", p.Symbol)
		}
		if p.Limit < 0 {
			return fmt.Errorf("products[%d].limit must not be negative", i)
		}
		products[p.Symbol] = true
	}

	baskets := make(map[string]bool, len(c.Baskets))
	for i, b := range c.Baskets {
		if b.Symbol == "" || len(b.Components) == 0 {
			return fmt.Errorf("baskets[%d] needs a symbol and components", i)
		}
		for _, comp := range b.Components {
			if comp.Weight == 0 {
				return fmt.Errorf("baskets[%d]: component %s has zero weight", i, comp.Symbol)
			}
		}
		baskets[string(b.Symbol)] = true
	}

	if err := c.validateStrategies(products, baskets); err != nil {
		return err
	}

	if c.Transport.SubjectPrefix == "" {
		c.Transport.SubjectPrefix = "tick"
	}
	if c.Transport.RequestTimeout == 0 {
		c.Transport.RequestTimeout = 2 * time.Second
	}

	if c.API.Host == "" {
		c.API.Host = "localhost"
	}
	if c.API.Port == 0 {
		c.API.Port = 9201
	}

	if c.Store.Enabled && c.Store.Path == "" {
		c.Store.Path = "data/checkpoint"
	}

	if c.Risk.EmergencyStopThreshold < 0 || c.Risk.MaxOrdersPerSymbol < 0 {
		return fmt.Errorf("risk thresholds must not be negative")
	}
	if c.Risk.MaxAlerts == 0 {
		c.Risk.MaxAlerts = 1000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}

// validateStrategies 验证策略配置
func (c *TraderConfig) validateStrategies(products, baskets map[string]bool) error {
	ids := make(map[string]bool)
	for i, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategies[%d].id is required", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate strategy id: %s", s.ID)
		}
		ids[s.ID] = true

		if err := validateStrategyType(s.Type); err != nil {
			return fmt.Errorf("strategies[%d]: %w", i, err)
		}
		if len(s.Symbols) == 0 {
			return fmt.Errorf("strategies[%d].symbols cannot be empty", i)
		}
		for _, sym := range s.Symbols {
			if !products[sym] {
				return fmt.Errorf("strategies[%d]: symbol %s is not a configured product", i, sym)
			}
		}
		if s.Type == "basket_arb" {
			name, _ := s.Parameters["basket"].(string)
			if !baskets[name] {
				return fmt.Errorf("strategies[%d]: unknown basket %q", i, name)
			}
		}
	}
	return nil
}

// validateStrategyType 验证策略类型
func validateStrategyType(strategyType string) error {
	for _, t := range ValidStrategyTypes {
		if strategyType == t {
			return nil
		}
	}
	return fmt.Errorf("strategy type must be one of: %v", ValidStrategyTypes)
}

// GetEnabledStrategies 获取所有启用的策略配置
func (c *TraderConfig) GetEnabledStrategies() []StrategyItemConfig {
	enabled := make([]StrategyItemConfig, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// Limits returns the symbol -> position limit table
func (c *TraderConfig) Limits() map[market.Symbol]int {
	out := make(map[market.Symbol]int, len(c.Products))
	for _, p := range c.Products {
		out[market.Symbol(p.Symbol)] = p.Limit
	}
	return out
}

// Basket returns the basket whose symbol is name
func (c *TraderConfig) Basket(name string) (pricing.Basket, bool) {
	for _, b := range c.Baskets {
		if string(b.Symbol) == name {
			return b, true
		}
	}
	return pricing.Basket{}, false
}

// SaveTraderConfig saves configuration to a YAML file
func SaveTraderConfig(filepath string, config *TraderConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
