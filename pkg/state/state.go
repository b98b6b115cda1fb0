// Package state carries the bounded per-instrument history across ticks.
// It is the only data that survives a tick, serialised into the opaque
// trader token by Codec.
package state

import (
	"sort"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Phase of the history. It only moves WarmUp -> Steady.
type Phase uint8

const (
	WarmUp Phase = iota
	Steady
)

func (p Phase) String() string {
	if p == Steady {
		return "steady"
	}
	return "warmup"
}

// Record flags
const (
	HasMid uint32 = 1 << iota
	HasImbalance
	HasIV
	HasForecastIV
	HasDelta
	HasOptionMid
)

// Record 单个品种在某一 tick 的派生数据
type Record struct {
	Flags      uint32
	Mid        float64
	Imbalance  float64
	IV         float64
	ForecastIV float64
	Delta      float64
	OptionMid  float64

	// 对冲记录
	HedgeQty int

	// 转换套利记录
	ConversionPrice float64
	ConversionQty   int
	QuotePrice      int
	QuoteQty        int

	// 上一 tick 自己的成交量
	OwnVolume int
}

// Has reports whether a flag is set
func (r Record) Has(flag uint32) bool {
	return r.Flags&flag != 0
}

// Set stores a float field and marks it present
func (r *Record) Set(f Field, v float64) {
	switch f {
	case FieldMid:
		r.Mid = v
	case FieldImbalance:
		r.Imbalance = v
	case FieldIV:
		r.IV = v
	case FieldForecastIV:
		r.ForecastIV = v
	case FieldDelta:
		r.Delta = v
	case FieldOptionMid:
		r.OptionMid = v
	default:
		return
	}
	r.Flags |= f.flag()
}

// Field names one of the optional float fields of a Record
type Field uint8

const (
	FieldMid Field = iota
	FieldImbalance
	FieldIV
	FieldForecastIV
	FieldDelta
	FieldOptionMid
)

func (f Field) flag() uint32 {
	return 1 << uint32(f)
}

// Get returns a float field if present
func (r Record) Get(f Field) (float64, bool) {
	if !r.Has(f.flag()) {
		return 0, false
	}
	switch f {
	case FieldMid:
		return r.Mid, true
	case FieldImbalance:
		return r.Imbalance, true
	case FieldIV:
		return r.IV, true
	case FieldForecastIV:
		return r.ForecastIV, true
	case FieldDelta:
		return r.Delta, true
	case FieldOptionMid:
		return r.OptionMid, true
	}
	return 0, false
}

// Frame is everything recorded for one tick
type Frame struct {
	Timestamp int64
	Records   map[market.Symbol]Record
}

// NewFrame creates an empty frame
func NewFrame(ts int64) Frame {
	return Frame{Timestamp: ts, Records: make(map[market.Symbol]Record)}
}

// Record returns the record of a symbol
func (f Frame) Record(sym market.Symbol) (Record, bool) {
	r, ok := f.Records[sym]
	return r, ok
}

// Symbols returns the recorded symbols sorted
func (f Frame) Symbols() []market.Symbol {
	out := make([]market.Symbol, 0, len(f.Records))
	for sym := range f.Records {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// History 固定容量的环形缓冲，超出容量时丢弃最旧的 frame
type History struct {
	capacity int
	frames   []Frame // chronological
}

// NewHistory creates an empty history; capacity < 1 is treated as 1
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity, frames: make([]Frame, 0, capacity)}
}

// Capacity returns N
func (h *History) Capacity() int {
	return h.capacity
}

// Len returns the number of stored frames
func (h *History) Len() int {
	return len(h.frames)
}

// Push appends a frame, evicting the oldest when full
func (h *History) Push(f Frame) {
	if len(h.frames) >= h.capacity {
		copy(h.frames, h.frames[1:])
		h.frames = h.frames[:len(h.frames)-1]
	}
	h.frames = append(h.frames, f)
}

// Latest returns the newest frame
func (h *History) Latest() (Frame, bool) {
	if len(h.frames) == 0 {
		return Frame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

// Previous returns the frame before the newest
func (h *History) Previous() (Frame, bool) {
	if len(h.frames) < 2 {
		return Frame{}, false
	}
	return h.frames[len(h.frames)-2], true
}

// Frames returns the frames oldest first. The slice must not be modified.
func (h *History) Frames() []Frame {
	return h.frames
}

// Series returns one field of a symbol newest first, position aligned:
// out[i] belongs to the frame i ticks back. It stops at the first frame
// where the field is absent.
func (h *History) Series(sym market.Symbol, f Field) []float64 {
	out := make([]float64, 0, len(h.frames))
	for i := len(h.frames) - 1; i >= 0; i-- {
		v, ok := h.frames[i].Records[sym].Get(f)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// State is the decoded trader token
type State struct {
	Phase    Phase
	Observed uint64 // frames ever pushed, saturating
	History  *History
}

// New returns a fresh warm-up state
func New(capacity int) *State {
	return &State{Phase: WarmUp, History: NewHistory(capacity)}
}

// Append pushes this tick's frame and advances the phase once warmupTicks
// frames have been observed
func (s *State) Append(f Frame, warmupTicks int) {
	s.History.Push(f)
	if s.Observed < ^uint64(0) {
		s.Observed++
	}
	if s.Phase == WarmUp && s.Observed >= uint64(max(warmupTicks, 0)) {
		s.Phase = Steady
	}
}
