package h2proto

import (
	"fmt"

	"golang.org/x/net/http2"
)

// ConnectionError means the connection can no longer continue; the
// engine must send GOAWAY (if it hasn't already) and tear the
// transport down.
type ConnectionError struct {
	Code http2.ErrCode
	Text string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("http2: connection error (%s): %s", e.Code, e.Text)
}

// StreamError means a single stream must be reset; the connection
// continues to serve other streams.
type StreamError struct {
	StreamID uint32
	Code     http2.ErrCode
	Text     string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("http2: stream %d error (%s): %s", e.StreamID, e.Code, e.Text)
}

// BadState reports local API misuse: an operation against a ref the
// Stream Table doesn't know, or against a stream whose local half is
// already closed.
type BadState struct {
	Text string
}

func (e *BadState) Error() string { return "http2: bad state: " + e.Text }

// OptionError reports an unrecognized or malformed entry in the
// options passed to NewEngine.
type OptionError struct {
	Option string
	Key    string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("http2: invalid option %s: %s", e.Option, e.Key)
}
