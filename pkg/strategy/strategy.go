// Package strategy provides the per-tick trading strategies and the registry
// binding them to instruments
package strategy

import (
	"fmt"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Strategy is the interface that all per-tick strategies implement.
// Run may claim liquidity, post quotes and emit orders through ctx; it never fails,
// a strategy that cannot act this tick simply does nothing.
type Strategy interface {
	// Name returns the strategy type name
	Name() string

	// Run executes the strategy for the instrument it is bound to
	Run(ctx *Context, sym market.Symbol)
}

// Observer is implemented by strategies that derive extra per-tick record
// fields (implied vol, delta) before the frame is appended to history
type Observer interface {
	Observe(ctx *Context, sym market.Symbol)
}

// binding 品种 -> 有序策略列表
type binding struct {
	symbol     market.Symbol
	strategies []Strategy
}

// Registry keeps the ordered strategy list of every instrument.
// Instruments run in the order they were first bound.
type Registry struct {
	bindings []binding
	index    map[market.Symbol]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[market.Symbol]int)}
}

// Bind appends strategies to the list of a symbol
func (r *Registry) Bind(sym market.Symbol, strategies ...Strategy) {
	i, ok := r.index[sym]
	if !ok {
		i = len(r.bindings)
		r.index[sym] = i
		r.bindings = append(r.bindings, binding{symbol: sym})
	}
	r.bindings[i].strategies = append(r.bindings[i].strategies, strategies...)
}

// Symbols returns the bound symbols in run order
func (r *Registry) Symbols() []market.Symbol {
	out := make([]market.Symbol, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.symbol
	}
	return out
}

// For returns the strategies bound to a symbol in run order
func (r *Registry) For(sym market.Symbol) []Strategy {
	i, ok := r.index[sym]
	if !ok {
		return nil
	}
	return r.bindings[i].strategies
}

// Len returns the number of bound symbols
func (r *Registry) Len() int {
	return len(r.bindings)
}

// Describe lists "SYMBOL: a -> b" lines for logging
func (r *Registry) Describe() []string {
	out := make([]string, 0, len(r.bindings))
	for _, b := range r.bindings {
		line := string(b.symbol) + ":"
		for i, s := range b.strategies {
			if i > 0 {
				line += " ->"
			}
			line += " " + s.Name()
		}
		out = append(out, line)
	}
	return out
}

// Params 策略参数（来自 YAML 的 parameters 字段）
type Params map[string]interface{}

// Float reads a number; YAML decodes integers as int, so both are accepted
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int reads an integer
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool reads a flag
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// String reads a string
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Floats reads a list of numbers
func (p Params) Floats(key string) ([]float64, error) {
	raw, ok := p[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("parameter %s: expected a list, got %T", key, raw)
	}
	out := make([]float64, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		default:
			return nil, fmt.Errorf("parameter %s[%d]: expected a number, got %T", key, i, item)
		}
	}
	return out, nil
}
