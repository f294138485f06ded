package h2codec

import (
	"bytes"

	"golang.org/x/net/http2"
)

// buildFrame runs write against a Framer bound to a fresh buffer and
// returns the bytes it produced. The Framer's reader side is unused on
// this path, so it is left nil.
func buildFrame(write func(fr *http2.Framer) error) ([]byte, error) {
	var buf bytes.Buffer
	fr := http2.NewFramer(&buf, nil)
	if err := write(fr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeSettings wire-encodes a SETTINGS frame carrying the given
// parameters.
func EncodeSettings(settings ...http2.Setting) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteSettings(settings...) })
}

// EncodeSettingsAck wire-encodes an empty SETTINGS frame with ACK set.
func EncodeSettingsAck() ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteSettingsAck() })
}

// EncodePing wire-encodes a PING frame, optionally with ACK set and the
// 8-byte opaque payload echoed back.
func EncodePing(ack bool, data [8]byte) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WritePing(ack, data) })
}

// EncodeWindowUpdate wire-encodes a WINDOW_UPDATE frame. streamID == 0
// targets the connection-level window.
func EncodeWindowUpdate(streamID, increment uint32) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteWindowUpdate(streamID, increment) })
}

// EncodeData wire-encodes a single DATA frame of whatever size it is
// given. The Machine decides frame sizes: it splits a payload only at
// flow-control window boundaries, not at the peer's max frame size.
func EncodeData(streamID uint32, payload []byte, endStream bool) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteData(streamID, endStream, payload) })
}

// EncodeRSTStream wire-encodes a RST_STREAM frame.
func EncodeRSTStream(streamID uint32, code http2.ErrCode) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteRSTStream(streamID, code) })
}

// EncodeGoAway wire-encodes a GOAWAY frame.
func EncodeGoAway(lastStreamID uint32, code http2.ErrCode, debug []byte) ([]byte, error) {
	return buildFrame(func(fr *http2.Framer) error { return fr.WriteGoAway(lastStreamID, code, debug) })
}

// EncodeHeaders wire-encodes an HPACK-compressed header block as a
// HEADERS frame, splitting the remainder across CONTINUATION frames
// when block exceeds maxFrameSize. This is the only place in the
// engine that emits CONTINUATION frames.
func EncodeHeaders(streamID uint32, maxFrameSize uint32, block []byte, endStream bool) ([]byte, error) {
	var out bytes.Buffer
	fr := http2.NewFramer(&out, nil)

	first := block
	rest := []byte(nil)
	endHeaders := true
	if uint32(len(block)) > maxFrameSize {
		first = block[:maxFrameSize]
		rest = block[maxFrameSize:]
		endHeaders = false
	}

	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    endHeaders,
	}); err != nil {
		return nil, err
	}

	for len(rest) > 0 {
		chunk := rest
		last := true
		if uint32(len(chunk)) > maxFrameSize {
			chunk = rest[:maxFrameSize]
			last = false
		}
		if err := fr.WriteContinuation(streamID, last, chunk); err != nil {
			return nil, err
		}
		rest = rest[len(chunk):]
	}

	return out.Bytes(), nil
}
