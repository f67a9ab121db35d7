package dashboard

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	Address      string // host:port for Start
	Handle       string // websocket path
	RingCapacity int    // frames replayed to late joiners
	ClientQueue  int    // per-viewer send queue
	MaxClients   int
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Broker fans encoded PartitionState frames out to websocket viewers. New
// viewers first receive the replay ring, then the live stream, with no gap
// or duplicate between the two.
type Broker struct {
	opts     BrokerOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader

	ringMu   sync.Mutex
	clients  map[*viewer]struct{}
	ring     [][]byte
	head     int
	capacity int

	stateMu  sync.Mutex
	running  bool
	listener net.Listener
	server   *http.Server
}

type viewer struct {
	conn *websocket.Conn
	ch   chan []byte
}

// NewBroker applies defaults to opts and returns an idle broker.
func NewBroker(opts BrokerOptions) *Broker {
	if opts.Handle == "" {
		opts.Handle = DefaultHandle
	}
	if opts.RingCapacity <= 0 {
		opts.RingCapacity = DefaultRingCapacity
	}
	if opts.ClientQueue <= 0 {
		opts.ClientQueue = DefaultClientQueue
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Broker{
		opts: opts,
		log:  opts.Logger.With().Str("component", "broker").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*viewer]struct{}),
		ring:     make([][]byte, opts.RingCapacity),
		capacity: opts.RingCapacity,
	}
}

// Start listens on opts.Address and serves the websocket handle.
func (b *Broker) Start() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.running {
		return errors.New("broker: already running")
	}
	ln, err := net.Listen("tcp", b.opts.Address)
	if err != nil {
		return fmt.Errorf("broker: listen %s: %w", b.opts.Address, err)
	}
	mux := http.NewServeMux()
	mux.Handle(b.opts.Handle, b)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	b.running = true
	b.listener = ln
	b.server = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error().Err(err).Msg("serve")
		}
	}()
	b.log.Info().Str("address", ln.Addr().String()).Str("handle", b.opts.Handle).Msg("broker listening")
	return nil
}

// Addr is the bound listen address, empty when not running.
func (b *Broker) Addr() string {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Stop closes the listener and every viewer connection.
func (b *Broker) Stop() {
	b.stateMu.Lock()
	srv := b.server
	b.running = false
	b.listener = nil
	b.server = nil
	b.stateMu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}

	b.ringMu.Lock()
	for v := range b.clients {
		b.dropLocked(v)
		_ = v.conn.Close()
	}
	b.ringMu.Unlock()
}

// Clients reports the number of attached viewers.
func (b *Broker) Clients() int {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	return len(b.clients)
}

// Publish encodes rec, stores it in the replay ring and sends it to every
// viewer. A viewer whose queue is full loses its oldest queued frames.
func (b *Broker) Publish(rec PartitionState) {
	buf := Encode(rec)

	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	b.ring[b.head] = buf
	b.head = (b.head + 1) % b.capacity

	for v := range b.clients {
		if trySend(v, buf) {
			continue
		}
		dropped := 0
		for len(v.ch) == cap(v.ch) {
			<-v.ch
			dropped++
		}
		_ = trySend(v, buf)
		if dropped > 0 {
			b.log.Warn().Int("dropped", dropped).Str("viewer", v.conn.RemoteAddr().String()).Msg("viewer lagged")
		}
	}
}

// ServeHTTP upgrades the request and attaches the viewer.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.Clients() >= b.opts.MaxClients {
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("upgrade")
		return
	}

	v := &viewer{conn: conn, ch: make(chan []byte, b.opts.ClientQueue)}
	b.ringMu.Lock()
	// Concurrent upgrades may have filled the slots since the first check.
	if len(b.clients) >= b.opts.MaxClients {
		b.ringMu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many viewers")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(b.opts.WriteTimeout))
		_ = conn.Close()
		return
	}
	replay := b.replayLocked()
	b.clients[v] = struct{}{}
	b.ringMu.Unlock()
	b.log.Info().Str("viewer", conn.RemoteAddr().String()).Int("replay", len(replay)).Msg("viewer attached")

	// Control frames are only processed while something reads.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				b.detach(v)
				return
			}
		}
	}()

	go func() {
		defer b.detach(v)
		for _, msg := range replay {
			if err := b.write(v, msg); err != nil {
				return
			}
		}
		for msg := range v.ch {
			if err := b.write(v, msg); err != nil {
				return
			}
		}
	}()
}

func (b *Broker) write(v *viewer, msg []byte) error {
	_ = v.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	return v.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (b *Broker) detach(v *viewer) {
	b.ringMu.Lock()
	b.dropLocked(v)
	b.ringMu.Unlock()
	_ = v.conn.Close()
}

func (b *Broker) dropLocked(v *viewer) {
	if _, ok := b.clients[v]; !ok {
		return
	}
	delete(b.clients, v)
	close(v.ch)
}

func (b *Broker) replayLocked() [][]byte {
	out := make([][]byte, 0, b.capacity)
	for i := 0; i < b.capacity; i++ {
		idx := (b.head + i) % b.capacity
		if b.ring[idx] != nil {
			out = append(out, b.ring[idx])
		}
	}
	return out
}

func trySend(v *viewer, buf []byte) bool {
	select {
	case v.ch <- buf:
		return true
	default:
		return false
	}
}
