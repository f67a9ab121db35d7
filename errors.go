package dashboard

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected = errors.New("stream client: already connected")
	ErrClientClosed     = errors.New("stream client: closed")
	ErrSessionClosed    = errors.New("session: closed")
)

// ErrStreamEnded is returned by Reconnector.Run when the last connection
// ended on its own and the policy allows no further attempt.
var ErrStreamEnded = errors.New("stream ended")

// DecodeError reports a frame that does not conform to the PartitionState
// wire schema. The frame is dropped; the stream carries on.
type DecodeError struct {
	Offset int    // byte offset where decoding stopped
	Field  string // field being decoded, empty for framing errors
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode partition state"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += fmt.Sprintf(" at byte %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConnectionError wraps a transport failure (refused, reset, handshake).
type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SinkError wraps a rendering failure. It never affects the store.
type SinkError struct {
	Partition int
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("render partition %d: %v", e.Partition, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
