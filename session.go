package dashboard

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Endpoint string
	Dialer   *websocket.Dialer

	// Colors seeds the session's aggregator. Nil uses KeyedColors.
	Colors ColorStrategy
	// Selection may be shared between sessions so the viewer keeps its
	// choice across reconnects. Nil gives the session its own.
	Selection *Selection
	Sink      RenderSink

	// AutoSelect selects the first partition that delivers data when
	// nothing is selected yet.
	AutoSelect bool
	// RedrawInterval > 0 coalesces redraws: at most one is pending and
	// they run no more often than the interval. Zero redraws synchronously
	// inside the frame that touched the active partition.
	RedrawInterval time.Duration

	Logger  zerolog.Logger
	Metrics *Metrics
	OnEvent func(Event)
}

// Session is one live connection together with the store it feeds. Its
// store is discarded with it; a reconnect starts a new Session.
type Session struct {
	opts   SessionOptions
	agg    *Aggregator
	sel    *Selection
	client *StreamClient
	log    zerolog.Logger

	limiter *rate.Limiter

	mu         sync.Mutex
	closed     bool
	pending    bool
	timer      *time.Timer
	partitions int

	// drawMu serialises sink calls and lets Close wait out a call in flight.
	drawMu sync.Mutex
}

// NewSession builds a session; nothing is dialed until Start.
func NewSession(opts SessionOptions) *Session {
	sel := opts.Selection
	if sel == nil {
		sel = &Selection{}
	}
	s := &Session{
		opts: opts,
		agg:  NewAggregator(opts.Colors),
		sel:  sel,
	}
	if opts.RedrawInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.RedrawInterval), 1)
	}
	s.client = NewStreamClient(ClientOptions{
		Endpoint: opts.Endpoint,
		Dialer:   opts.Dialer,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		OnRecord: s.ingest,
		OnEvent:  s.event,
	})
	s.log = opts.Logger.With().Str("session", s.client.ID()).Logger()
	return s
}

// Start connects the underlying stream client.
func (s *Session) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.client.Connect(ctx)
}

// Done is closed when the connection has ended for any reason.
func (s *Session) Done() <-chan struct{} { return s.client.Done() }

// Aggregator exposes the session's store for reading.
func (s *Session) Aggregator() *Aggregator { return s.agg }

// Selection returns the selection this session draws from.
func (s *Session) Selection() *Selection { return s.sel }

// Select changes the active partition and redraws it, empty or not.
func (s *Session) Select(p int) {
	s.sel.Select(p)
	s.requestRedraw()
}

// Close tears the session down. Once it returns no further sink calls are
// made, although a frame already being processed may still reach the
// store. Safe to call repeatedly and before Start, but not from inside
// RenderSink.Redraw.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	// Wait out a sink call that is already in flight.
	s.drawMu.Lock()
	s.drawMu.Unlock()

	return s.client.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ingest is the client's per-frame callback and the only writer to the store.
func (s *Session) ingest(rec PartitionState) {
	touched := s.agg.Append(rec)
	if len(touched) == 0 {
		return
	}
	if s.opts.AutoSelect && s.sel.selectIfNone(rec.PartitionIndex) {
		s.log.Debug().Int("partition", rec.PartitionIndex).Msg("auto-selected partition")
	}
	s.notifyPartitions()

	if active, ok := s.sel.Active(); ok && slices.Contains(touched, active) {
		s.requestRedraw()
	}
}

func (s *Session) notifyPartitions() {
	obs, ok := s.opts.Sink.(PartitionObserver)
	if !ok {
		return
	}
	partitions := s.agg.Partitions()
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	s.mu.Lock()
	changed := !s.closed && len(partitions) != s.partitions
	if changed {
		s.partitions = len(partitions)
	}
	s.mu.Unlock()
	if changed {
		obs.PartitionsChanged(partitions)
	}
}

func (s *Session) requestRedraw() {
	if s.limiter == nil {
		s.redraw()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.limiter.Reserve().Delay(), s.flush)
}

func (s *Session) flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = nil
	s.mu.Unlock()
	s.redraw()
}

func (s *Session) redraw() {
	if s.opts.Sink == nil {
		return
	}
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	if s.isClosed() {
		return
	}
	active, ok := s.sel.Active()
	if !ok {
		return
	}
	series := s.agg.Series(active)
	err := s.opts.Sink.Redraw(active, series)
	s.opts.Metrics.redraw(err)
	if err != nil {
		s.log.Warn().Err(&SinkError{Partition: active, Err: err}).Msg("redraw failed")
	}
}

func (s *Session) event(ev Event) {
	switch ev.Kind {
	case EventDecodeError:
		s.log.Debug().Err(ev.Err).Msg("frame dropped")
	case EventClosed:
		s.log.Info().Int("points", s.agg.Points()).Msg("stream ended")
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}
