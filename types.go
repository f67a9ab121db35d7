package dashboard

import (
	"fmt"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	DefaultAddress        = "localhost:2112"
	DefaultHandle         = "/dashboard"
	DefaultRingCapacity   = 4096
	DefaultClientQueue    = 512
	DefaultMaxClients     = 5
	DefaultPNGWidth       = 1024
	DefaultPNGHeight      = 512
	DefaultFeedPartitions = 3
	DefaultFeedStateWidth = 2
	DefaultFeedDelayMs    = 100
	DefaultFeedSeed       = 42
	DefaultRedrawInterval = 100 * time.Millisecond
	DefaultLogFile        = "simdash.log"
)

// PartitionState is one decoded frame: the state vector a simulation
// partition reported at a point in cumulative simulation time.
type PartitionState struct {
	CumulativeTimesteps float64
	PartitionIndex      int
	State               []float64
}

// SeriesPoint is a single plotted sample.
type SeriesPoint struct {
	X float64
	Y float64
}

// SeriesKey identifies one line series: an element of one partition's
// state vector.
type SeriesKey struct {
	Partition int
	Element   int
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("p%d[%d]", k.Partition, k.Element)
}

// Identity is the display identity a series receives the first time its key
// is seen. It does not change for the life of the session.
type Identity struct {
	Name  string
	Color colorful.Color
}

// Series is the renderer-ready form of one element's history.
type Series struct {
	Key    SeriesKey
	Name   string
	Color  colorful.Color
	Points []SeriesPoint
}

// clonePoints copies a point slice so readers never alias the store.
func clonePoints(points []SeriesPoint) []SeriesPoint {
	return append([]SeriesPoint(nil), points...)
}
