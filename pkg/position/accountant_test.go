package position

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

func TestCapacity(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		live     int
		commits  []int
		wantBuy  int
		wantSell int
	}{
		{"flat", 20, 0, nil, 20, 20},
		{"long live", 20, 15, nil, 5, 35},
		{"at long limit", 20, 20, nil, 0, 40},
		{"provisional buy", 20, 0, []int{5}, 15, 20},
		{"provisional sell", 20, 0, []int{-8}, 20, 12},
		{"both sides committed", 20, 0, []int{5, 15, -20}, 20, 20},
		{"short live", 20, -20, nil, 40, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccountant(NewLimits(map[market.Symbol]int{"X": tt.limit}), map[market.Symbol]int{"X": tt.live})
			for _, q := range tt.commits {
				if err := a.Commit("X", q); err != nil {
					t.Fatalf("Commit(%d) error = %v", q, err)
				}
			}
			buy, sell := a.Capacity("X")
			if buy != tt.wantBuy || sell != tt.wantSell {
				t.Errorf("Capacity() = (%d, %d), want (%d, %d)", buy, sell, tt.wantBuy, tt.wantSell)
			}
		})
	}
}

func TestCommit_Rejects(t *testing.T) {
	a := NewAccountant(NewLimits(map[market.Symbol]int{"X": 10}), nil)
	if err := a.Commit("X", 11); !errors.Is(err, ErrExceedsCapacity) {
		t.Errorf("Commit(11) error = %v, want ErrExceedsCapacity", err)
	}
	if a.Provisional("X") != 0 {
		t.Error("failed commit must not change state")
	}
	if err := a.Commit("Y", 1); !errors.Is(err, ErrExceedsCapacity) {
		t.Errorf("unknown symbol has limit 0, got %v", err)
	}
}

func TestConvert(t *testing.T) {
	a := NewAccountant(NewLimits(map[market.Symbol]int{"ORCHIDS": 100}), map[market.Symbol]int{"ORCHIDS": -30})

	if err := a.Convert("ORCHIDS", 30); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if buy, sell := a.Capacity("ORCHIDS"); buy != 100 || sell != 100 {
		t.Errorf("Capacity() = (%d, %d), want (100, 100)", buy, sell)
	}
	if a.Converted("ORCHIDS") != 30 || a.Live("ORCHIDS") != -30 {
		t.Errorf("Converted/Live = %d/%d", a.Converted("ORCHIDS"), a.Live("ORCHIDS"))
	}
	if err := a.Convert("ORCHIDS", 101); !errors.Is(err, ErrExceedsCapacity) {
		t.Errorf("Convert(101) error = %v, want ErrExceedsCapacity", err)
	}
}

func TestNewLimits(t *testing.T) {
	l := NewLimits(map[market.Symbol]int{"A": 5, "B": -3})
	if l.Of("A") != 5 || l.Of("B") != 0 || l.Of("C") != 0 || l.Len() != 2 {
		t.Errorf("limits = %d %d %d len %d", l.Of("A"), l.Of("B"), l.Of("C"), l.Len())
	}
}

// 任意 clamp 后的下单序列，每次提交后 |live + provisional| <= limit
func TestClampedCommitsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(0, 100).Draw(t, "limit")
		live := rapid.IntRange(-limit, limit).Draw(t, "live")
		a := NewAccountant(NewLimits(map[market.Symbol]int{"X": limit}), map[market.Symbol]int{"X": live})

		for i, n := 0, rapid.IntRange(0, 20).Draw(t, "n"); i < n; i++ {
			q := rapid.IntRange(-150, 150).Draw(t, "qty")
			buy, sell := a.Capacity("X")
			if q > 0 {
				q = min(q, buy)
			} else {
				q = -min(-q, sell)
			}
			if err := a.Commit("X", q); err != nil {
				t.Fatalf("clamped commit rejected: %v", err)
			}
			if p := a.Position("X"); p > limit || p < -limit {
				t.Fatalf("Position() = %d outside ±%d", p, limit)
			}
		}
	})
}
