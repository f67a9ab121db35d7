package dashboard

import (
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorScenario(t *testing.T) {
	a := NewAggregator(nil)
	assert.Equal(t, []int{0}, a.Append(PartitionState{CumulativeTimesteps: 0, PartitionIndex: 0, State: []float64{1, 2}}))
	assert.Equal(t, []int{0}, a.Append(PartitionState{CumulativeTimesteps: 1, PartitionIndex: 0, State: []float64{3, 4}}))
	assert.Equal(t, []int{1}, a.Append(PartitionState{CumulativeTimesteps: 0, PartitionIndex: 1, State: []float64{9}}))

	assert.Equal(t, map[int][]SeriesPoint{
		0: {{0, 1}, {1, 3}},
		1: {{0, 2}, {1, 4}},
	}, a.Snapshot(0))
	assert.Equal(t, map[int][]SeriesPoint{0: {{0, 9}}}, a.Snapshot(1))
	assert.Equal(t, []int{0, 1}, a.Partitions())
	assert.Equal(t, 5, a.Points())
}

func TestAggregatorPreservesArrivalOrder(t *testing.T) {
	a := NewAggregator(nil)
	for _, x := range []float64{5, 1, 3, 3, 0} {
		a.Append(PartitionState{CumulativeTimesteps: x, PartitionIndex: 2, State: []float64{x * 10}})
	}
	assert.Equal(t, []SeriesPoint{{5, 50}, {1, 10}, {3, 30}, {3, 30}, {0, 0}}, a.Snapshot(2)[0])
}

func TestAggregatorStateGrowth(t *testing.T) {
	a := NewAggregator(nil)
	a.Append(PartitionState{CumulativeTimesteps: 0, State: []float64{1}})
	a.Append(PartitionState{CumulativeTimesteps: 1, State: []float64{2, 20, 200}})
	a.Append(PartitionState{CumulativeTimesteps: 2, State: []float64{3}})

	snap := a.Snapshot(0)
	assert.Equal(t, []SeriesPoint{{0, 1}, {1, 2}, {2, 3}}, snap[0])
	assert.Equal(t, []SeriesPoint{{1, 20}}, snap[1])
	assert.Equal(t, []SeriesPoint{{1, 200}}, snap[2])

	series := a.Series(0)
	require.Len(t, series, 3)
	for i, s := range series {
		assert.Equal(t, i, s.Key.Element)
	}
}

func TestAggregatorUnknownPartition(t *testing.T) {
	a := NewAggregator(nil)
	a.Append(PartitionState{PartitionIndex: 1, State: []float64{1}})
	snap := a.Snapshot(42)
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
	assert.Empty(t, a.Series(42))
}

func TestAggregatorEmptyState(t *testing.T) {
	a := NewAggregator(nil)
	assert.Nil(t, a.Append(PartitionState{CumulativeTimesteps: 4, PartitionIndex: 3}))
	assert.Empty(t, a.Partitions())
	assert.Empty(t, a.Snapshot(3))
}

func TestAggregatorSnapshotIsolation(t *testing.T) {
	a := NewAggregator(nil)
	a.Append(PartitionState{CumulativeTimesteps: 1, State: []float64{1}})

	first := a.Snapshot(0)
	assert.Equal(t, first, a.Snapshot(0))

	first[0][0].Y = 99
	first[1] = []SeriesPoint{{7, 7}}
	assert.Equal(t, map[int][]SeriesPoint{0: {{1, 1}}}, a.Snapshot(0))

	series := a.Series(0)
	series[0].Points[0].Y = 99
	assert.Equal(t, 1.0, a.Series(0)[0].Points[0].Y)
}

func TestAggregatorIdentityStable(t *testing.T) {
	calls := 0
	colors := ColorFunc(func(SeriesKey) colorful.Color {
		calls++
		return colorful.Hsv(float64(calls*40), 1, 1)
	})
	a := NewAggregator(colors)
	a.Append(PartitionState{CumulativeTimesteps: 0, State: []float64{1, 2}})
	first := a.Series(0)
	a.Append(PartitionState{CumulativeTimesteps: 1, State: []float64{3, 4}})
	second := a.Series(0)

	assert.Equal(t, 2, calls)
	require.Len(t, second, 2)
	for i := range second {
		assert.Equal(t, first[i].Color, second[i].Color)
		assert.Equal(t, first[i].Name, second[i].Name)
	}
	id, ok := a.Identity(SeriesKey{Partition: 0, Element: 1})
	require.True(t, ok)
	assert.Equal(t, "p0[1]", id.Name)
	_, ok = a.Identity(SeriesKey{Partition: 5, Element: 0})
	assert.False(t, ok)
}

func TestAggregatorReset(t *testing.T) {
	a := NewAggregator(nil)
	a.Append(PartitionState{State: []float64{1}})
	a.Reset()
	assert.Zero(t, a.Points())
	assert.Empty(t, a.Partitions())
	_, ok := a.Identity(SeriesKey{})
	assert.False(t, ok)
}
