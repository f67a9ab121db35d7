package dashboard

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the DashboardPartitionState message.
const (
	fieldCumulativeTimesteps protowire.Number = 1
	fieldPartitionIndex      protowire.Number = 2
	fieldState               protowire.Number = 3
)

// Decode parses one binary frame into a PartitionState. It is pure and safe
// for concurrent use. Unknown fields are skipped; an empty frame is a valid
// message with every field at its default.
func Decode(frame []byte) (PartitionState, error) {
	var rec PartitionState
	b := frame
	off := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PartitionState{}, &DecodeError{Offset: off, Reason: "bad tag", Err: protowire.ParseError(n)}
		}
		b, off = b[n:], off+n

		switch num {
		case fieldCumulativeTimesteps:
			if typ != protowire.Fixed64Type {
				return PartitionState{}, wireTypeError(off, "cumulative_timesteps", typ)
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return PartitionState{}, &DecodeError{Offset: off, Field: "cumulative_timesteps", Reason: "truncated", Err: protowire.ParseError(n)}
			}
			ts := math.Float64frombits(v)
			if math.IsNaN(ts) || math.IsInf(ts, 0) {
				return PartitionState{}, &DecodeError{Offset: off, Field: "cumulative_timesteps", Reason: "not finite"}
			}
			rec.CumulativeTimesteps = ts
			b, off = b[n:], off+n

		case fieldPartitionIndex:
			if typ != protowire.VarintType {
				return PartitionState{}, wireTypeError(off, "partition_index", typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return PartitionState{}, &DecodeError{Offset: off, Field: "partition_index", Reason: "truncated", Err: protowire.ParseError(n)}
			}
			idx := int64(v)
			if idx < 0 || idx > math.MaxInt32 {
				return PartitionState{}, &DecodeError{Offset: off, Field: "partition_index", Reason: "out of range"}
			}
			rec.PartitionIndex = int(idx)
			b, off = b[n:], off+n

		case fieldState:
			switch typ {
			case protowire.BytesType:
				packed, n := protowire.ConsumeBytes(b)
				if n < 0 {
					return PartitionState{}, &DecodeError{Offset: off, Field: "state", Reason: "truncated", Err: protowire.ParseError(n)}
				}
				if len(packed)%8 != 0 {
					return PartitionState{}, &DecodeError{Offset: off, Field: "state", Reason: "packed length not a multiple of 8"}
				}
				for len(packed) > 0 {
					v, m := protowire.ConsumeFixed64(packed)
					rec.State = append(rec.State, math.Float64frombits(v))
					packed = packed[m:]
				}
				b, off = b[n:], off+n
			case protowire.Fixed64Type:
				v, n := protowire.ConsumeFixed64(b)
				if n < 0 {
					return PartitionState{}, &DecodeError{Offset: off, Field: "state", Reason: "truncated", Err: protowire.ParseError(n)}
				}
				rec.State = append(rec.State, math.Float64frombits(v))
				b, off = b[n:], off+n
			default:
				return PartitionState{}, wireTypeError(off, "state", typ)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PartitionState{}, &DecodeError{Offset: off, Reason: "bad unknown field", Err: protowire.ParseError(n)}
			}
			b, off = b[n:], off+n
		}
	}
	return rec, nil
}

// Encode writes rec in the packed wire form Decode accepts. Zero-valued
// scalars are omitted, matching proto3.
func Encode(rec PartitionState) []byte {
	b := make([]byte, 0, 24+8*len(rec.State))
	if rec.CumulativeTimesteps != 0 {
		b = protowire.AppendTag(b, fieldCumulativeTimesteps, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(rec.CumulativeTimesteps))
	}
	if rec.PartitionIndex != 0 {
		b = protowire.AppendTag(b, fieldPartitionIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(rec.PartitionIndex)))
	}
	if len(rec.State) > 0 {
		packed := make([]byte, 0, 8*len(rec.State))
		for _, v := range rec.State {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		b = protowire.AppendTag(b, fieldState, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b
}

func wireTypeError(off int, field string, typ protowire.Type) error {
	return &DecodeError{Offset: off, Field: field, Reason: "unexpected wire type " + wireTypeName(typ)}
}

func wireTypeName(typ protowire.Type) string {
	switch typ {
	case protowire.VarintType:
		return "varint"
	case protowire.Fixed32Type:
		return "fixed32"
	case protowire.Fixed64Type:
		return "fixed64"
	case protowire.BytesType:
		return "bytes"
	case protowire.StartGroupType, protowire.EndGroupType:
		return "group"
	}
	return "unknown"
}
