// Package h2codec is the pure, stateless byte<->frame translator the
// rest of the engine treats as an external, reusable building block: it
// knows nothing about streams, flow control, or application semantics,
// only about turning bytes into typed HTTP/2 frames and back.
//
// It is a thin adapter over golang.org/x/net/http2's Framer and
// golang.org/x/net/http2/hpack, the same pair of libraries a handful of
// other client-side HTTP/2 engines in the wild reach for instead of
// hand-rolling wire-format and header-compression logic.
package h2codec

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// VerdictKind classifies the outcome of a single Parse call.
type VerdictKind int

const (
	// VerdictMore means buf is a strict prefix of a frame; the caller
	// must hold on to buf and retry once more bytes have arrived.
	VerdictMore VerdictKind = iota
	// VerdictIgnore means the frame was a known-but-silently-droppable
	// type (PRIORITY) or a frame type this engine doesn't recognize.
	VerdictIgnore
	// VerdictFrame means a frame was fully decoded.
	VerdictFrame
	// VerdictStreamError means a recoverable, per-stream protocol
	// violation was detected; the connection may continue.
	VerdictStreamError
	// VerdictConnectionError means a violation that must terminate the
	// connection was detected.
	VerdictConnectionError
)

// Verdict is the result of attempting to decode a frame from a byte
// buffer.
type Verdict struct {
	Kind VerdictKind

	// Populated when Kind == VerdictFrame.
	Frame  http2.Frame
	Fields []hpack.HeaderField // decoded header block, for PUSH_PROMISE frames (HEADERS carry theirs in MetaHeadersFrame.Fields)

	// Populated when Kind is an error kind.
	StreamID uint32
	Reason   http2.ErrCode
	Text     string

	// Consumed is the number of leading bytes of buf this verdict
	// accounts for (header plus payload, plus any aggregated
	// CONTINUATION frames for a header block). The caller advances its
	// residual buffer by exactly this many bytes. Meaningless for
	// VerdictMore, where none of buf is consumed.
	Consumed int
}

func isIncomplete(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Parse attempts to decode exactly one frame from the front of buf,
// honoring maxFrameSize as the negotiated inbound frame size cap. hdec
// is the connection's long-lived HPACK decoder: its dynamic table must
// persist across calls, so the same *hpack.Decoder is passed in every
// time even though a fresh Framer is built per call.
//
// Parse never consumes buf; it is the caller's job to advance its
// residual buffer once a VerdictFrame/VerdictIgnore/VerdictStreamError
// reports how many bytes the frame actually occupied (via Consumed).
func Parse(buf []byte, maxFrameSize uint32, hdec *hpack.Decoder) Verdict {
	if len(buf) < http2FrameHeaderLen {
		return Verdict{Kind: VerdictMore}
	}

	var fields []hpack.HeaderField
	hdec.SetEmitFunc(func(f hpack.HeaderField) { fields = append(fields, f) })

	r := bytes.NewReader(buf)
	fr := http2.NewFramer(io.Discard, r)
	fr.SetMaxReadFrameSize(maxFrameSize)
	fr.ReadMetaHeaders = hdec

	frame, err := fr.ReadFrame()
	consumed := len(buf) - r.Len()
	if err != nil {
		if isIncomplete(err) {
			return Verdict{Kind: VerdictMore}
		}
		if errors.Is(err, http2.ErrFrameTooLarge) {
			return Verdict{Kind: VerdictConnectionError, Reason: http2.ErrCodeFrameSize, Text: "frame exceeds negotiated max_frame_size"}
		}
		var se http2.StreamError
		if errors.As(err, &se) {
			return Verdict{Kind: VerdictStreamError, StreamID: se.StreamID, Reason: se.Code, Text: se.Error(), Consumed: consumed}
		}
		var ce http2.ConnectionError
		if errors.As(err, &ce) {
			return Verdict{Kind: VerdictConnectionError, Reason: http2.ErrCode(ce), Text: ce.Error()}
		}
		return Verdict{Kind: VerdictConnectionError, Reason: http2.ErrCodeProtocol, Text: err.Error()}
	}

	switch f := frame.(type) {
	case *http2.PriorityFrame, *http2.UnknownFrame:
		return Verdict{Kind: VerdictIgnore, Consumed: consumed}
	case *http2.PushPromiseFrame:
		if !f.HeadersEnded() {
			return Verdict{Kind: VerdictConnectionError, Reason: http2.ErrCodeCompression, Text: "PUSH_PROMISE split across CONTINUATION frames is not supported"}
		}
		promisedFields, decErr := hdec.DecodeFull(f.HeaderBlockFragment())
		if decErr != nil {
			return Verdict{Kind: VerdictConnectionError, Reason: http2.ErrCodeCompression, Text: decErr.Error()}
		}
		return Verdict{Kind: VerdictFrame, Frame: frame, Fields: promisedFields, Consumed: consumed}
	default:
		return Verdict{Kind: VerdictFrame, Frame: frame, Fields: fields, Consumed: consumed}
	}
}

const http2FrameHeaderLen = 9
