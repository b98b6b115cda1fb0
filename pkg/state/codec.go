package state

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Version is the token layout version written by Encode
const Version = 1

var (
	// ErrVersion token written by an unknown layout
	ErrVersion = errors.New("state: unsupported token version")
	// ErrCorrupt token could not be parsed
	ErrCorrupt = errors.New("state: corrupt token")
)

// field numbers
const (
	stateFieldVersion  protowire.Number = 1
	stateFieldPhase    protowire.Number = 2
	stateFieldObserved protowire.Number = 3
	stateFieldFrame    protowire.Number = 4

	frameFieldTimestamp protowire.Number = 1
	frameFieldRecord    protowire.Number = 2

	recFieldSymbol          protowire.Number = 1
	recFieldFlags           protowire.Number = 2
	recFieldMid             protowire.Number = 3
	recFieldImbalance       protowire.Number = 4
	recFieldIV              protowire.Number = 5
	recFieldForecastIV      protowire.Number = 6
	recFieldDelta           protowire.Number = 7
	recFieldOptionMid       protowire.Number = 8
	recFieldHedgeQty        protowire.Number = 9
	recFieldConversionPrice protowire.Number = 10
	recFieldConversionQty   protowire.Number = 11
	recFieldQuotePrice      protowire.Number = 12
	recFieldQuoteQty        protowire.Number = 13
	recFieldOwnVolume       protowire.Number = 14
)

// Codec converts State to and from the opaque token
type Codec struct {
	Capacity int
}

// NewCodec creates a codec whose decoded histories hold at most capacity frames
func NewCodec(capacity int) Codec {
	return Codec{Capacity: capacity}
}

// Encode serialises the state; output is deterministic for equal states
func (c Codec) Encode(s *State) string {
	return base64.StdEncoding.EncodeToString(c.Marshal(s))
}

// Decode parses a token. An empty token yields a fresh state and no error.
// On error the returned state is fresh, so callers may log and continue.
func (c Codec) Decode(token string) (*State, error) {
	if token == "" {
		return New(c.Capacity), nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return New(c.Capacity), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s, err := c.Unmarshal(raw)
	if err != nil {
		return New(c.Capacity), err
	}
	return s, nil
}

// Marshal writes the protobuf wire form
func (c Codec) Marshal(s *State) []byte {
	var b []byte
	b = protowire.AppendTag(b, stateFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, Version)
	b = protowire.AppendTag(b, stateFieldPhase, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Phase))
	b = protowire.AppendTag(b, stateFieldObserved, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Observed)
	for _, f := range s.History.Frames() {
		b = protowire.AppendTag(b, stateFieldFrame, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalFrame(f))
	}
	return b
}

func marshalFrame(f Frame) []byte {
	var b []byte
	b = protowire.AppendTag(b, frameFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(f.Timestamp))
	for _, sym := range f.Symbols() {
		b = protowire.AppendTag(b, frameFieldRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalRecord(sym, f.Records[sym]))
	}
	return b
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func marshalRecord(sym market.Symbol, r Record) []byte {
	var b []byte
	b = protowire.AppendTag(b, recFieldSymbol, protowire.BytesType)
	b = protowire.AppendString(b, string(sym))
	b = protowire.AppendTag(b, recFieldFlags, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Flags))
	b = appendFloat(b, recFieldMid, r.Mid)
	b = appendFloat(b, recFieldImbalance, r.Imbalance)
	b = appendFloat(b, recFieldIV, r.IV)
	b = appendFloat(b, recFieldForecastIV, r.ForecastIV)
	b = appendFloat(b, recFieldDelta, r.Delta)
	b = appendFloat(b, recFieldOptionMid, r.OptionMid)
	b = appendInt(b, recFieldHedgeQty, r.HedgeQty)
	b = appendFloat(b, recFieldConversionPrice, r.ConversionPrice)
	b = appendInt(b, recFieldConversionQty, r.ConversionQty)
	b = appendInt(b, recFieldQuotePrice, r.QuotePrice)
	b = appendInt(b, recFieldQuoteQty, r.QuoteQty)
	b = appendInt(b, recFieldOwnVolume, r.OwnVolume)
	return b
}

// Unmarshal parses the protobuf wire form. Frames beyond Capacity are
// dropped oldest first.
func (c Codec) Unmarshal(b []byte) (*State, error) {
	s := New(c.Capacity)
	version := uint64(0)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, corrupt(n)
		}
		b = b[n:]

		switch {
		case num == stateFieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt(n)
			}
			version, b = v, b[n:]
		case num == stateFieldPhase && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt(n)
			}
			if v > uint64(Steady) {
				return nil, fmt.Errorf("%w: phase %d", ErrCorrupt, v)
			}
			s.Phase, b = Phase(v), b[n:]
		case num == stateFieldObserved && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt(n)
			}
			s.Observed, b = v, b[n:]
		case num == stateFieldFrame && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, corrupt(n)
			}
			f, err := unmarshalFrame(v)
			if err != nil {
				return nil, err
			}
			s.History.Push(f)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, corrupt(n)
			}
			b = b[n:]
		}
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	return s, nil
}

func unmarshalFrame(b []byte) (Frame, error) {
	f := NewFrame(0)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, corrupt(n)
		}
		b = b[n:]
		switch {
		case num == frameFieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, corrupt(n)
			}
			f.Timestamp, b = protowire.DecodeZigZag(v), b[n:]
		case num == frameFieldRecord && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, corrupt(n)
			}
			sym, r, err := unmarshalRecord(v)
			if err != nil {
				return Frame{}, err
			}
			f.Records[sym] = r
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, corrupt(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}

func unmarshalRecord(b []byte) (market.Symbol, Record, error) {
	var (
		sym market.Symbol
		r   Record
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", Record{}, corrupt(n)
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", Record{}, corrupt(n)
			}
			if num == recFieldSymbol {
				sym = market.Symbol(v)
			}
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return "", Record{}, corrupt(n)
			}
			x := math.Float64frombits(v)
			switch num {
			case recFieldMid:
				r.Mid = x
			case recFieldImbalance:
				r.Imbalance = x
			case recFieldIV:
				r.IV = x
			case recFieldForecastIV:
				r.ForecastIV = x
			case recFieldDelta:
				r.Delta = x
			case recFieldOptionMid:
				r.OptionMid = x
			case recFieldConversionPrice:
				r.ConversionPrice = x
			}
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return "", Record{}, corrupt(n)
			}
			i := int(protowire.DecodeZigZag(v))
			switch num {
			case recFieldFlags:
				r.Flags = uint32(v)
			case recFieldHedgeQty:
				r.HedgeQty = i
			case recFieldConversionQty:
				r.ConversionQty = i
			case recFieldQuotePrice:
				r.QuotePrice = i
			case recFieldQuoteQty:
				r.QuoteQty = i
			case recFieldOwnVolume:
				r.OwnVolume = i
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", Record{}, corrupt(n)
			}
			b = b[n:]
		}
	}
	if sym == "" {
		return "", Record{}, fmt.Errorf("%w: record without symbol", ErrCorrupt)
	}
	return sym, r, nil
}

func corrupt(n int) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
}
