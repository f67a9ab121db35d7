package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer serves one websocket handler per connection.
func streamServer(t *testing.T, handle func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + DefaultHandle
}

// sendThenClose writes frames and closes the stream normally.
func sendThenClose(frames ...[]byte) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the peer to answer the close.
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}
}

type recorder struct {
	mu      sync.Mutex
	records []PartitionState
	events  []Event
}

func (r *recorder) record(rec PartitionState) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *recorder) event(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]PartitionState, []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PartitionState(nil), r.records...), append([]Event(nil), r.events...)
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the client to stop")
	}
}

func TestStreamClientDropsCorruptFrame(t *testing.T) {
	first := PartitionState{CumulativeTimesteps: 1, PartitionIndex: 0, State: []float64{1}}
	second := PartitionState{CumulativeTimesteps: 2, PartitionIndex: 0, State: []float64{2}}
	_, endpoint := streamServer(t, sendThenClose(Encode(first), []byte{0x80}, Encode(second)))

	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnRecord: rec.record, OnEvent: rec.event})
	require.NoError(t, c.Connect(context.Background()))
	waitDone(t, c.Done())

	records, events := rec.snapshot()
	assert.Equal(t, []PartitionState{first, second}, records)
	assert.Equal(t, []EventKind{EventOpen, EventDecodeError, EventClosed}, kinds(events))
	var de *DecodeError
	assert.True(t, errors.As(events[1].Err, &de))
	assert.True(t, websocket.IsCloseError(events[2].Err, websocket.CloseNormalClosure))
}

func TestStreamClientTextFrameIsDecodeError(t *testing.T) {
	_, endpoint := streamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		sendThenClose(Encode(PartitionState{PartitionIndex: 1, State: []float64{5}}))(conn)
	})

	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnRecord: rec.record, OnEvent: rec.event})
	require.NoError(t, c.Connect(context.Background()))
	waitDone(t, c.Done())

	records, events := rec.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].PartitionIndex)
	assert.Equal(t, []EventKind{EventOpen, EventDecodeError, EventClosed}, kinds(events))
}

func TestStreamClientConnectTwice(t *testing.T) {
	_, endpoint := streamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	})
	c := NewStreamClient(ClientOptions{Endpoint: endpoint})
	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	waitDone(t, c.Done())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
}

func TestStreamClientCloseBeforeConnect(t *testing.T) {
	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: "ws://127.0.0.1:1/dashboard", OnEvent: rec.event})
	require.NoError(t, c.Close())
	waitDone(t, c.Done())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	_, events := rec.snapshot()
	assert.Empty(t, events)
}

func TestStreamClientLocalClose(t *testing.T) {
	_, endpoint := streamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	})
	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnEvent: rec.event})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	waitDone(t, c.Done())

	_, events := rec.snapshot()
	assert.Equal(t, []EventKind{EventOpen, EventClosed}, kinds(events))
	assert.NoError(t, events[1].Err)
}

func TestStreamClientDialFailure(t *testing.T) {
	srv, endpoint := streamServer(t, func(*websocket.Conn) {})
	srv.Close()

	var rec recorder
	m := NewMetrics(nil)
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnEvent: rec.event, Metrics: m})
	err := c.Connect(context.Background())
	require.Error(t, err)
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "dial", ce.Op)
	assert.Equal(t, endpoint, ce.Endpoint)
	waitDone(t, c.Done())

	_, events := rec.snapshot()
	assert.Equal(t, []EventKind{EventError, EventClosed}, kinds(events))
	assert.True(t, errors.As(events[0].Err, &ce))
}

func TestStreamClientPeerReset(t *testing.T) {
	_, endpoint := streamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, Encode(PartitionState{State: []float64{1}}))
		// Drop the TCP connection without a close frame.
		_ = conn.UnderlyingConn().Close()
	})
	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnRecord: rec.record, OnEvent: rec.event})
	require.NoError(t, c.Connect(context.Background()))
	waitDone(t, c.Done())

	records, events := rec.snapshot()
	assert.Len(t, records, 1)
	assert.Equal(t, []EventKind{EventOpen, EventError, EventClosed}, kinds(events))
	var ce *ConnectionError
	require.True(t, errors.As(events[1].Err, &ce))
	assert.Equal(t, "read", ce.Op)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "decode-error", EventDecodeError.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}

func TestStreamClientCloseWhileDialing(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + DefaultHandle

	var rec recorder
	c := NewStreamClient(ClientOptions{Endpoint: endpoint, OnEvent: rec.event})
	connected := make(chan error, 1)
	go func() { connected <- c.Connect(context.Background()) }()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake never reached the server")
	}
	require.NoError(t, c.Close())

	select {
	case err := <-connected:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect still blocked after Close")
	}
	waitDone(t, c.Done())
	_, events := rec.snapshot()
	assert.NotContains(t, kinds(events), EventOpen)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
}
