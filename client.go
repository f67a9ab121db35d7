package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventKind classifies connection lifecycle events.
type EventKind int

const (
	EventOpen EventKind = iota
	EventDecodeError
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventDecodeError:
		return "decode-error"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is delivered to ClientOptions.OnEvent. Err is a *DecodeError for
// EventDecodeError and a *ConnectionError for EventError.
type Event struct {
	Kind EventKind
	Err  error
	At   time.Time
}

// ClientOptions configures a StreamClient.
type ClientOptions struct {
	Endpoint string
	Dialer   *websocket.Dialer // nil uses websocket.DefaultDialer
	Header   http.Header
	Logger   zerolog.Logger
	Metrics  *Metrics

	// OnRecord receives every decoded record in wire order, one at a time,
	// on the client's read goroutine.
	OnRecord func(PartitionState)
	// OnEvent receives lifecycle events on the same goroutine.
	OnEvent func(Event)
}

type clientState int

const (
	stateIdle clientState = iota
	stateConnecting
	stateOpen
	stateClosed
)

// StreamClient owns one websocket connection and dispatches decoded
// records from a single read goroutine. A client connects at most once;
// reconnecting means building a new client.
type StreamClient struct {
	opts ClientOptions
	id   string
	log  zerolog.Logger

	mu         sync.Mutex
	state      clientState
	conn       *websocket.Conn
	cancelDial context.CancelFunc

	releaseOnce sync.Once
	doneOnce    sync.Once
	done        chan struct{}
}

// NewStreamClient prepares a client; nothing is dialed until Connect.
func NewStreamClient(opts ClientOptions) *StreamClient {
	id := uuid.NewString()
	return &StreamClient{
		opts: opts,
		id:   id,
		log:  opts.Logger.With().Str("session", id).Str("endpoint", opts.Endpoint).Logger(),
		done: make(chan struct{}),
	}
}

// ID is the session id attached to this client's log lines.
func (c *StreamClient) ID() string { return c.id }

// Done is closed once the client has fully stopped: the read loop exited,
// the dial failed, or Close was called before any connection existed.
func (c *StreamClient) Done() <-chan struct{} { return c.done }

// Connect dials the endpoint and starts the read loop. It fails with
// ErrAlreadyConnected on a second call and ErrClientClosed after Close.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case stateConnecting, stateOpen:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = stateConnecting
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancelDial = cancel
	c.mu.Unlock()

	dialer, stopWatch := watchDial(dialCtx, c.opts.Dialer)
	c.log.Debug().Msg("dialing")
	conn, resp, err := dialer.DialContext(dialCtx, c.opts.Endpoint, c.opts.Header)
	if !stopWatch() && err == nil {
		// Cancelled after the handshake finished; the socket is gone.
		_ = conn.Close()
		conn, err = nil, dialCtx.Err()
	}
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		c.finishDone()
		return ErrClientClosed
	}
	if err != nil {
		c.state = stateClosed
		c.mu.Unlock()
		cerr := &ConnectionError{Endpoint: c.opts.Endpoint, Op: "dial", Err: err}
		c.log.Warn().Err(err).Msg("dial failed")
		c.emit(Event{Kind: EventError, Err: cerr})
		c.emit(Event{Kind: EventClosed, Err: cerr})
		c.finishDone()
		return cerr
	}
	c.state = stateOpen
	c.conn = conn
	c.mu.Unlock()

	c.opts.Metrics.connected(true)
	c.log.Info().Msg("connected")
	c.emit(Event{Kind: EventOpen})
	go c.readLoop(conn)
	return nil
}

// watchDial returns a copy of d whose TCP connection is closed as soon as
// ctx is cancelled; the upgrade handshake only honours deadlines. The
// returned func detaches the watch and reports false if it already fired.
func watchDial(ctx context.Context, d *websocket.Dialer) (*websocket.Dialer, func() bool) {
	if d == nil {
		d = websocket.DefaultDialer
	}
	watched := *d
	netDial := d.NetDialContext
	if netDial == nil {
		netDial = (&net.Dialer{}).DialContext
	}
	stop := func() bool { return true }
	watched.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		nc, err := netDial(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		stop = context.AfterFunc(ctx, func() { _ = nc.Close() })
		return nc, nil
	}
	return &watched, func() bool { return stop() }
}

// Close tears the connection down. It is safe to call any number of times,
// before Connect, or while Connect is still dialing; the connection is
// released exactly once.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	prev := c.state
	c.state = stateClosed
	conn := c.conn
	cancel := c.cancelDial
	c.mu.Unlock()

	switch prev {
	case stateClosed:
		return nil
	case stateIdle:
		c.finishDone()
		return nil
	case stateConnecting:
		cancel()
		return nil
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug().Err(err).Msg("close frame not sent")
	}
	c.release(conn)
	return nil
}

func (c *StreamClient) closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

func (c *StreamClient) readLoop(conn *websocket.Conn) {
	defer c.finishDone()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.release(conn)
			c.opts.Metrics.connected(false)
			c.readFailed(err)
			return
		}
		c.opts.Metrics.frame()
		if mt != websocket.BinaryMessage {
			c.dropFrame(&DecodeError{Reason: "text frame on a binary stream"})
			continue
		}
		rec, err := Decode(data)
		if err != nil {
			c.dropFrame(err)
			continue
		}
		c.opts.Metrics.decoded()
		if c.opts.OnRecord != nil {
			c.opts.OnRecord(rec)
		}
	}
}

func (c *StreamClient) readFailed(err error) {
	switch {
	case c.closing():
		c.log.Info().Msg("closed locally")
		c.emit(Event{Kind: EventClosed})
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Info().Err(err).Msg("closed by peer")
		c.markClosed()
		c.emit(Event{Kind: EventClosed, Err: err})
	default:
		cerr := &ConnectionError{Endpoint: c.opts.Endpoint, Op: "read", Err: err}
		c.log.Warn().Err(err).Msg("connection lost")
		c.markClosed()
		c.emit(Event{Kind: EventError, Err: cerr})
		c.emit(Event{Kind: EventClosed, Err: cerr})
	}
}

func (c *StreamClient) dropFrame(err error) {
	c.opts.Metrics.decodeError()
	c.log.Warn().Err(err).Msg("dropped frame")
	c.emit(Event{Kind: EventDecodeError, Err: err})
}

func (c *StreamClient) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
}

func (c *StreamClient) release(conn *websocket.Conn) {
	c.releaseOnce.Do(func() {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("release connection")
		}
	})
}

func (c *StreamClient) finishDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *StreamClient) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}
