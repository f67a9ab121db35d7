package dashboard

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeRoundTrip(t *testing.T) {
	rec := PartitionState{CumulativeTimesteps: 2.5, PartitionIndex: 7, State: []float64{1, -2.25, 0}}
	got, err := Decode(Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDecodeEmptyFrame(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, PartitionState{}, got)
	assert.NotNil(t, Encode(PartitionState{}))
}

func TestDecodeUnpackedState(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldPartitionIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, 3)
	for _, v := range []float64{4, 5} {
		b = protowire.AppendTag(b, fieldState, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PartitionIndex)
	assert.Equal(t, []float64{4, 5}, got.State)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("extra"))
	b = protowire.AppendTag(b, 10, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	b = append(b, Encode(PartitionState{CumulativeTimesteps: 1, PartitionIndex: 1, State: []float64{8}})...)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, PartitionState{CumulativeTimesteps: 1, PartitionIndex: 1, State: []float64{8}}, got)
}

func TestDecodeErrors(t *testing.T) {
	valid := Encode(PartitionState{CumulativeTimesteps: 1, PartitionIndex: 2, State: []float64{3, 4}})

	negative := protowire.AppendTag(nil, fieldPartitionIndex, protowire.VarintType)
	negative = protowire.AppendVarint(negative, ^uint64(0))

	tooLarge := protowire.AppendTag(nil, fieldPartitionIndex, protowire.VarintType)
	tooLarge = protowire.AppendVarint(tooLarge, uint64(math.MaxInt32)+1)

	wrongType := protowire.AppendTag(nil, fieldCumulativeTimesteps, protowire.VarintType)
	wrongType = protowire.AppendVarint(wrongType, 1)

	nan := protowire.AppendTag(nil, fieldCumulativeTimesteps, protowire.Fixed64Type)
	nan = protowire.AppendFixed64(nan, math.Float64bits(math.NaN()))

	oddPacked := protowire.AppendTag(nil, fieldState, protowire.BytesType)
	oddPacked = protowire.AppendBytes(oddPacked, []byte{1, 2, 3})

	cases := []struct {
		name  string
		frame []byte
		field string
	}{
		{"truncated payload", valid[:len(valid)-3], "state"},
		{"truncated double", valid[:5], "cumulative_timesteps"},
		{"bad tag", []byte{0x80}, ""},
		{"negative partition", negative, "partition_index"},
		{"partition out of range", tooLarge, "partition_index"},
		{"wrong wire type", wrongType, "cumulative_timesteps"},
		{"non-finite timesteps", nan, "cumulative_timesteps"},
		{"packed length", oddPacked, "state"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.frame)
			require.Error(t, err)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %T", err)
			assert.Equal(t, tc.field, de.Field)
		})
	}
}
