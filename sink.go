package dashboard

import "errors"

// RenderSink draws the complete series set of one partition. Every call
// replaces whatever the sink drew before; the core never sends partial
// updates.
type RenderSink interface {
	Redraw(partition int, series []Series) error
}

// PartitionObserver is implemented by sinks that want to know which
// partitions exist (to offer them for selection).
type PartitionObserver interface {
	PartitionsChanged(partitions []int)
}

// SinkFunc adapts a function to RenderSink.
type SinkFunc func(partition int, series []Series) error

func (f SinkFunc) Redraw(partition int, series []Series) error { return f(partition, series) }

// MultiSink fans a redraw out to several sinks. Every sink is called even
// when an earlier one fails; the failures are joined.
type MultiSink []RenderSink

func (m MultiSink) Redraw(partition int, series []Series) error {
	var errs []error
	for _, s := range m {
		if err := s.Redraw(partition, series); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) PartitionsChanged(partitions []int) {
	for _, s := range m {
		if obs, ok := s.(PartitionObserver); ok {
			obs.PartitionsChanged(append([]int(nil), partitions...))
		}
	}
}
