package dashboard

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// WienerFeed simulates independent Wiener processes, one state vector per
// partition, for demos and tests of the viewer.
type WienerFeed struct {
	cfg    FeedConfig
	rng    *rand.Rand
	scale  float64
	states [][]float64
	time   float64
	steps  int
}

// NewWienerFeed starts every partition at the origin.
func NewWienerFeed(cfg FeedConfig) *WienerFeed {
	if cfg.Partitions <= 0 {
		cfg.Partitions = DefaultFeedPartitions
	}
	if cfg.StateWidth <= 0 {
		cfg.StateWidth = DefaultFeedStateWidth
	}
	if cfg.Variance <= 0 {
		cfg.Variance = 1
	}
	states := make([][]float64, cfg.Partitions)
	for i := range states {
		states[i] = make([]float64, cfg.StateWidth)
	}
	return &WienerFeed{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		scale:  math.Sqrt(cfg.Variance),
		states: states,
	}
}

// Step advances every partition by one unit timestep and returns one record
// per partition, in partition order.
func (f *WienerFeed) Step() []PartitionState {
	f.time++
	f.steps++
	out := make([]PartitionState, len(f.states))
	for p, st := range f.states {
		for i := range st {
			st[i] += f.scale * f.rng.NormFloat64()
		}
		out[p] = PartitionState{
			CumulativeTimesteps: f.time,
			PartitionIndex:      p,
			State:               append([]float64(nil), st...),
		}
	}
	return out
}

// Done reports whether the configured step budget is used up.
func (f *WienerFeed) Done() bool {
	return f.cfg.MaxSteps > 0 && f.steps >= f.cfg.MaxSteps
}

// Run steps the feed, handing each record to publish, with the configured
// delay between steps. It returns nil when the step budget runs out and
// ctx.Err() when cancelled.
func (f *WienerFeed) Run(ctx context.Context, publish func(PartitionState)) error {
	delay := time.Duration(f.cfg.MillisecondDelay) * time.Millisecond
	for !f.Done() {
		for _, rec := range f.Step() {
			publish(rec)
		}
		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
