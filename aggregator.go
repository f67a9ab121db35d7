package dashboard

import (
	"sort"
	"sync"
)

// Aggregator turns the ordered record stream into per-partition,
// per-element point sequences. Append is called from a single dispatch
// goroutine; the read methods may be called from any goroutine (the UI
// event loop reads when the active partition changes).
type Aggregator struct {
	colors ColorStrategy

	mu         sync.RWMutex
	partitions map[int]map[int][]SeriesPoint
	identities map[SeriesKey]Identity
}

// NewAggregator returns an empty aggregator. A nil strategy falls back to
// KeyedColors.
func NewAggregator(colors ColorStrategy) *Aggregator {
	if colors == nil {
		colors = KeyedColors()
	}
	return &Aggregator{
		colors:     colors,
		partitions: make(map[int]map[int][]SeriesPoint),
		identities: make(map[SeriesKey]Identity),
	}
}

// Append records one point per state element and returns the partitions it
// touched. A record with an empty state is accepted, touches nothing and
// returns nil.
func (a *Aggregator) Append(rec PartitionState) []int {
	if len(rec.State) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	elements, ok := a.partitions[rec.PartitionIndex]
	if !ok {
		elements = make(map[int][]SeriesPoint, len(rec.State))
		a.partitions[rec.PartitionIndex] = elements
	}
	for i, y := range rec.State {
		key := SeriesKey{Partition: rec.PartitionIndex, Element: i}
		if _, seen := a.identities[key]; !seen {
			a.identities[key] = Identity{Name: key.String(), Color: a.colors.Assign(key)}
		}
		elements[i] = append(elements[i], SeriesPoint{X: rec.CumulativeTimesteps, Y: y})
	}
	return []int{rec.PartitionIndex}
}

// Snapshot returns a copy of every element series of partition p. An unknown
// partition yields an empty map.
func (a *Aggregator) Snapshot(p int) map[int][]SeriesPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	elements := a.partitions[p]
	out := make(map[int][]SeriesPoint, len(elements))
	for i, points := range elements {
		out[i] = clonePoints(points)
	}
	return out
}

// Series returns partition p in renderer form, ordered by element index.
func (a *Aggregator) Series(p int) []Series {
	a.mu.RLock()
	defer a.mu.RUnlock()
	elements := a.partitions[p]
	out := make([]Series, 0, len(elements))
	for i, points := range elements {
		key := SeriesKey{Partition: p, Element: i}
		id := a.identities[key]
		out = append(out, Series{Key: key, Name: id.Name, Color: id.Color, Points: clonePoints(points)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Element < out[j].Key.Element })
	return out
}

// Identity reports the display identity assigned to key, if it has been seen.
func (a *Aggregator) Identity(key SeriesKey) (Identity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.identities[key]
	return id, ok
}

// Partitions lists the known partition indices in ascending order.
func (a *Aggregator) Partitions() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int, 0, len(a.partitions))
	for p := range a.partitions {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Points counts every stored point.
func (a *Aggregator) Points() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, elements := range a.partitions {
		for _, points := range elements {
			n += len(points)
		}
	}
	return n
}

// Reset discards the whole store, identities included.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.partitions = make(map[int]map[int][]SeriesPoint)
	a.identities = make(map[SeriesKey]Identity)
	a.mu.Unlock()
}
