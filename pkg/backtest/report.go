package backtest

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteMarkdown writes a human readable replay report
func WriteMarkdown(w io.Writer, r *Result) error {
	p := &errWriter{w: w}

	p.printf("# 回放报告\n\n")
	p.printf("**时间戳区间**: %d 至 %d\n", r.FirstTimestamp, r.LastTimestamp)
	p.printf("**耗时**: %s\n\n", r.Duration)

	p.printf("## 概览\n\n")
	p.printf("| 指标 | 数值 |\n")
	p.printf("|------|------|\n")
	p.printf("| **Ticks** | %d |\n", r.Ticks)
	p.printf("| **失败** | %d |\n", r.Errors)
	p.printf("| **订单数** | %d |\n", r.TotalOrders)
	p.printf("| **转换合计** | %d |\n", r.Conversions)
	p.printf("| **平均 tick 耗时** | %s |\n", r.AvgTickDuration)
	p.printf("| **最大 tick 耗时** | %s |\n", r.MaxTickDuration)
	p.printf("| **超预算 tick** | %d |\n\n", r.OverBudget)

	p.printf("## 品种统计\n\n")
	p.printf("| Symbol | Orders | Buy Qty | Avg Buy | Sell Qty | Avg Sell | Max Abs Pos | Breaches |\n")
	p.printf("|--------|--------|---------|---------|----------|----------|-------------|----------|\n")
	for _, s := range r.Symbols {
		p.printf("| %s | %d | %d | %.2f | %d | %.2f | %d | %d |\n",
			s.Symbol, s.Orders, s.BuyQty, s.AvgBuyPrice(), s.SellQty, s.AvgSellPrice(), s.MaxAbsPos, s.Breaches)
	}
	return p.err
}

// WriteJSON writes the result as indented JSON
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
