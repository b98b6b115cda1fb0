// Package book provides the simulated order book shared by all strategies
// within one tick. Liquidity claimed by one strategy is removed from the book
// so that a later strategy can never allocate the same resting order twice.
package book

import (
	"sort"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Level is a price level with a positive volume magnitude
type Level struct {
	Price  int
	Volume int
}

// Fill is a claim made against a level
type Fill struct {
	Price int
	Qty   int
}

// Book 是单个品种本 tick 的可变盘口副本
// 内部统一存储正数量；own* 记录本 tick 自己挂出的报价（不可被自己吃掉）
type Book struct {
	symbol  market.Symbol
	bids    map[int]int
	asks    map[int]int
	ownBids map[int]int
	ownAsks map[int]int
}

// FromDepth deep-copies a snapshot depth into a working book
func FromDepth(sym market.Symbol, depth market.OrderDepth) *Book {
	b := &Book{
		symbol:  sym,
		bids:    make(map[int]int, len(depth.Buy)),
		asks:    make(map[int]int, len(depth.Sell)),
		ownBids: make(map[int]int),
		ownAsks: make(map[int]int),
	}
	for p, v := range depth.Buy {
		if v > 0 {
			b.bids[p] = v
		}
	}
	for p, v := range depth.Sell {
		if v < 0 {
			b.asks[p] = -v
		}
	}
	return b
}

// Symbol returns the instrument this book belongs to
func (b *Book) Symbol() market.Symbol {
	return b.symbol
}

func (b *Book) side(s market.Side) map[int]int {
	if s == market.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) ownSide(s market.Side) map[int]int {
	if s == market.Buy {
		return b.ownBids
	}
	return b.ownAsks
}

// sortedPrices returns prices of a side in priority order (bids desc, asks asc)
func sortedPrices(levels map[int]int, s market.Side) []int {
	prices := make([]int, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	if s == market.Buy {
		sort.Sort(sort.Reverse(sort.IntSlice(prices)))
	} else {
		sort.Ints(prices)
	}
	return prices
}

// Claim walks the named side best-first and takes min(volume, capacity) from
// every level whose price satisfies pred, until capacity is exhausted.
// Levels failing pred are passed over. Own posted quotes are never claimed.
// Returns the fills and the remaining capacity.
func (b *Book) Claim(s market.Side, pred func(price int) bool, capacity int) ([]Fill, int) {
	if capacity <= 0 {
		return nil, capacity
	}
	levels := b.side(s)
	var fills []Fill
	for _, price := range sortedPrices(levels, s) {
		if capacity <= 0 {
			break
		}
		if pred != nil && !pred(price) {
			continue
		}
		vol := levels[price]
		qty := min(vol, capacity)
		if qty <= 0 {
			continue
		}
		if qty == vol {
			delete(levels, price)
		} else {
			levels[price] = vol - qty
		}
		capacity -= qty
		fills = append(fills, Fill{Price: price, Qty: qty})
	}
	return fills, capacity
}

// ClaimAt takes up to qty from the single level at price. Returns the amount claimed.
func (b *Book) ClaimAt(s market.Side, price, qty int) int {
	fills, _ := b.Claim(s, func(p int) bool { return p == price }, qty)
	claimed := 0
	for _, f := range fills {
		claimed += f.Qty
	}
	return claimed
}

// Post registers an own resting quote so later strategies see it in the book
func (b *Book) Post(s market.Side, price, qty int) {
	if qty <= 0 {
		return
	}
	b.ownSide(s)[price] += qty
}

// best returns the best price across market and own levels of a side
func (b *Book) best(s market.Side) (int, bool) {
	var best int
	found := false
	for _, levels := range []map[int]int{b.side(s), b.ownSide(s)} {
		for p, v := range levels {
			if v <= 0 {
				continue
			}
			if !found || (s == market.Buy && p > best) || (s == market.Sell && p < best) {
				best, found = p, true
			}
		}
	}
	return best, found
}

// BestBid returns the highest remaining bid, including own quotes
func (b *Book) BestBid() (int, bool) {
	return b.best(market.Buy)
}

// BestAsk returns the lowest remaining ask, including own quotes
func (b *Book) BestAsk() (int, bool) {
	return b.best(market.Sell)
}

// BestLevel returns the best claimable market level of a side
func (b *Book) BestLevel(s market.Side) (Level, bool) {
	levels := b.side(s)
	prices := sortedPrices(levels, s)
	if len(prices) == 0 {
		return Level{}, false
	}
	return Level{Price: prices[0], Volume: levels[prices[0]]}, true
}

// WorstLevel returns the deepest claimable market level of a side
func (b *Book) WorstLevel(s market.Side) (Level, bool) {
	levels := b.side(s)
	prices := sortedPrices(levels, s)
	if len(prices) == 0 {
		return Level{}, false
	}
	last := prices[len(prices)-1]
	return Level{Price: last, Volume: levels[last]}, true
}

// Mid returns the mid of the best remaining bid and ask
func (b *Book) Mid() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return float64(bid+ask) / 2.0, true
}

// TotalVolume sums the claimable market volume of a side
func (b *Book) TotalVolume(s market.Side) int {
	total := 0
	for _, v := range b.side(s) {
		total += v
	}
	return total
}

// Levels returns the claimable market levels of a side in priority order
func (b *Book) Levels(s market.Side) []Level {
	levels := b.side(s)
	out := make([]Level, 0, len(levels))
	for _, p := range sortedPrices(levels, s) {
		out = append(out, Level{Price: p, Volume: levels[p]})
	}
	return out
}

// Volume returns the claimable market volume at a price
func (b *Book) Volume(s market.Side, price int) int {
	return b.side(s)[price]
}

// Set holds one Book per instrument for the duration of a tick
type Set struct {
	books map[market.Symbol]*Book
}

// NewSet copies every depth of the snapshot
func NewSet(depths map[market.Symbol]market.OrderDepth) *Set {
	s := &Set{books: make(map[market.Symbol]*Book, len(depths))}
	for sym, depth := range depths {
		s.books[sym] = FromDepth(sym, depth)
	}
	return s
}

// Get returns the shared book of a symbol
func (s *Set) Get(sym market.Symbol) (*Book, bool) {
	b, ok := s.books[sym]
	return b, ok
}
