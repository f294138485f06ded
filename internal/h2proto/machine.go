// Package h2proto is the Protocol Machine: a pure, transport-free model
// of one HTTP/2 client connection's state. It never touches a socket —
// it only turns decoded frames into application-facing events and
// turns outbound intents (send headers, send data, reset a stream)
// into wire-ready bytes for the caller to write. Every side effect
// (reading, writing, timers) belongs to the engine loop built on top.
package h2proto

import (
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/perbu/h2engine/internal/h2codec"
)

// ClientPreface is the fixed byte sequence a client must write before
// its first SETTINGS frame.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Default, pre-negotiation values from RFC 7540 §6.5.2, plus
// DefaultMaxConcurrentInbound, this client's own advertised limit (the
// RFC sets no initial value for it).
const (
	DefaultInitialWindowSize  = 65535
	DefaultMaxFrameSize       = 16384
	DefaultHeaderTableSize    = 4096
	DefaultMaxConcurrentInbound = 100
)

// HalfState is one direction's half of a stream's lifecycle.
type HalfState int

const (
	HalfIdle HalfState = iota
	HalfOpen
	HalfClosed
)

func (s HalfState) String() string {
	switch s {
	case HalfIdle:
		return "idle"
	case HalfOpen:
		return "open"
	case HalfClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type pendingChunk struct {
	data []byte
	fin  bool
}

type streamState struct {
	local, remote  HalfState
	headersSeen    bool
	sendWindow     int32
	recvWindow     int32
	pending        []pendingChunk
}

// PseudoHeaders carries the HTTP/2 pseudo-header fields relevant to a
// request or response.
type PseudoHeaders struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Status    int
}

// EventKind classifies the application-facing event a Frame call
// produces.
type EventKind int

const (
	EventData EventKind = iota
	EventHeadersInform
	EventHeadersFinal
	EventTrailers
	EventRSTStream
	EventPushPromise
	EventGoAway
)

// Event is the result of successfully processing one inbound frame
// against the Machine.
type Event struct {
	Kind        EventKind
	StreamID    uint32
	ParentID    uint32 // EventPushPromise: the stream the promise arrived on
	PromisedID  uint32 // EventPushPromise: the new, server-assigned stream id
	Fin         bool
	Payload     []byte
	Headers     []hpack.HeaderField
	Pseudo      PseudoHeaders
	Reason      http2.ErrCode // EventRSTStream, EventGoAway
	LastStreamID uint32       // EventGoAway
	Debug       []byte        // EventGoAway
}

// OutFrame is a fully wire-encoded frame the engine should write to
// the transport, tagged with the stream it belongs to for bookkeeping.
type OutFrame struct {
	StreamID uint32
	Fin      bool
	Data     []byte
}

// Machine is the connection-scoped protocol state: settings, HPACK
// codec, flow-control windows, and per-stream half-states. It is not
// safe for concurrent use; the engine loop that owns it must serialize
// all calls, exactly like it serializes everything else.
type Machine struct {
	nextStreamID uint32

	localSettings  map[http2.SettingID]uint32
	remoteSettings map[http2.SettingID]uint32

	remoteInitialWindow uint32

	connSendWindow int32
	connRecvWindow int32

	headers *h2codec.HeaderCodec

	streams            map[uint32]*streamState
	lastRemoteStreamID uint32

	settingsAckPending bool
}

// NewMachine constructs a Machine preloaded with this client's local
// settings and returns the bytes the engine must write first: the
// client connection preface followed by the initial SETTINGS frame.
func NewMachine(localSettings map[http2.SettingID]uint32) (*Machine, []byte, error) {
	settings := defaultedSettings(localSettings)
	m := &Machine{
		nextStreamID:        1,
		localSettings:       settings,
		remoteSettings:      map[http2.SettingID]uint32{},
		remoteInitialWindow: DefaultInitialWindowSize,
		connSendWindow:      DefaultInitialWindowSize,
		connRecvWindow:      DefaultInitialWindowSize,
		headers:             h2codec.NewHeaderCodec(settings[http2.SettingHeaderTableSize]),
		streams:             map[uint32]*streamState{},
	}

	settingsFrame, err := h2codec.EncodeSettings(m.localSettingsList()...)
	if err != nil {
		return nil, nil, err
	}

	out := make([]byte, 0, len(ClientPreface)+len(settingsFrame))
	out = append(out, ClientPreface...)
	out = append(out, settingsFrame...)
	m.settingsAckPending = true
	return m, out, nil
}

func defaultedSettings(in map[http2.SettingID]uint32) map[http2.SettingID]uint32 {
	out := map[http2.SettingID]uint32{
		http2.SettingHeaderTableSize:   DefaultHeaderTableSize,
		http2.SettingInitialWindowSize: DefaultInitialWindowSize,
		http2.SettingMaxFrameSize:      DefaultMaxFrameSize,
		http2.SettingMaxConcurrentStreams: DefaultMaxConcurrentInbound,
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Machine) localSettingsList() []http2.Setting {
	list := make([]http2.Setting, 0, len(m.localSettings))
	for id, v := range m.localSettings {
		list = append(list, http2.Setting{ID: id, Val: v})
	}
	return list
}

// LocalSetting returns this client's own advertised value for id.
func (m *Machine) LocalSetting(id http2.SettingID) uint32 { return m.localSettings[id] }

// Decoder exposes the connection's long-lived HPACK decoder so the
// engine can hand the same instance to h2codec.Parse on every call.
func (m *Machine) Decoder() *hpack.Decoder { return m.headers.Decoder() }

// MaxFrameSize returns the inbound frame size bound the codec should
// enforce: this client's own advertised SETTINGS_MAX_FRAME_SIZE.
func (m *Machine) MaxFrameSize() uint32 { return m.localSettings[http2.SettingMaxFrameSize] }

// PeerMaxFrameSize returns the bound this client must respect when
// framing its own outbound HEADERS/DATA: the peer's advertised
// SETTINGS_MAX_FRAME_SIZE, defaulting to the RFC floor until the peer
// sends its own SETTINGS.
func (m *Machine) PeerMaxFrameSize() uint32 {
	if v, ok := m.remoteSettings[http2.SettingMaxFrameSize]; ok {
		return v
	}
	return DefaultMaxFrameSize
}

// InitStream allocates the next client-initiated (odd) stream id and
// seeds its half-states as idle.
func (m *Machine) InitStream() uint32 {
	id := m.nextStreamID
	m.nextStreamID += 2
	m.streams[id] = &streamState{
		local:      HalfIdle,
		remote:     HalfIdle,
		sendWindow: int32(m.remoteInitialWindow),
		recvWindow: int32(m.localSettings[http2.SettingInitialWindowSize]),
	}
	return id
}

// PrepareHeaders HPACK-encodes pseudo plus headers for id and marks
// the stream's local half open (or closed, if fin is set). It returns
// the raw header block; splitting it across HEADERS/CONTINUATION
// frames within the peer's max frame size is the caller's job via
// h2codec.EncodeHeaders.
func (m *Machine) PrepareHeaders(id uint32, fin bool, pseudo PseudoHeaders, headers []hpack.HeaderField) ([]byte, error) {
	ss := m.streams[id]
	if ss == nil {
		return nil, &BadState{Text: "stream cannot be found"}
	}
	if ss.local == HalfClosed {
		return nil, &BadState{Text: "stream local half is already closed"}
	}

	fields := buildRequestFields(pseudo, headers)
	block, err := m.headers.EncodeHeaderBlock(fields)
	if err != nil {
		return nil, err
	}

	ss.local = HalfOpen
	if fin {
		ss.local = HalfClosed
	}
	return block, nil
}

func buildRequestFields(p PseudoHeaders, headers []hpack.HeaderField) []hpack.HeaderField {
	fields := make([]hpack.HeaderField, 0, len(headers)+4)
	if p.Method != "" {
		fields = append(fields, hpack.HeaderField{Name: ":method", Value: p.Method})
	}
	if p.Scheme != "" {
		fields = append(fields, hpack.HeaderField{Name: ":scheme", Value: p.Scheme})
	}
	if p.Authority != "" {
		fields = append(fields, hpack.HeaderField{Name: ":authority", Value: p.Authority})
	}
	if p.Path != "" {
		fields = append(fields, hpack.HeaderField{Name: ":path", Value: p.Path})
	}
	return append(fields, headers...)
}

// PrepareTrailers HPACK-encodes a trailer block and closes the
// stream's local half.
func (m *Machine) PrepareTrailers(id uint32, trailers []hpack.HeaderField) ([]byte, error) {
	ss := m.streams[id]
	if ss == nil {
		return nil, &BadState{Text: "stream cannot be found"}
	}
	block, err := m.headers.EncodeHeaderBlock(trailers)
	if err != nil {
		return nil, err
	}
	ss.local = HalfClosed
	return block, nil
}

// SendOrQueueData appends payload to id's outbound queue and drains as
// much of the queue as the current connection and stream send windows
// allow, returning the DATA frames ready to write now. Anything that
// doesn't fit stays queued until a WINDOW_UPDATE unblocks it.
func (m *Machine) SendOrQueueData(id uint32, fin bool, payload []byte) ([]OutFrame, error) {
	ss := m.streams[id]
	if ss == nil {
		return nil, &BadState{Text: "stream cannot be found"}
	}
	if ss.local == HalfClosed {
		return nil, &BadState{Text: "stream local half is already closed"}
	}
	ss.pending = append(ss.pending, pendingChunk{data: payload, fin: fin})
	return m.drainStream(id, ss)
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func (m *Machine) drainStream(id uint32, ss *streamState) ([]OutFrame, error) {
	var out []OutFrame
	for len(ss.pending) > 0 {
		avail := min32(ss.sendWindow, m.connSendWindow)
		if avail <= 0 {
			break
		}
		chunk := ss.pending[0]
		n := int32(len(chunk.data))
		if n <= avail {
			wire, err := h2codec.EncodeData(id, chunk.data, chunk.fin)
			if err != nil {
				return out, err
			}
			out = append(out, OutFrame{StreamID: id, Fin: chunk.fin, Data: wire})
			ss.sendWindow -= n
			m.connSendWindow -= n
			ss.pending = ss.pending[1:]
			if chunk.fin {
				ss.local = HalfClosed
			}
			continue
		}

		head := chunk.data[:avail]
		tail := chunk.data[avail:]
		wire, err := h2codec.EncodeData(id, head, false)
		if err != nil {
			return out, err
		}
		out = append(out, OutFrame{StreamID: id, Fin: false, Data: wire})
		ss.sendWindow -= avail
		m.connSendWindow -= avail
		ss.pending[0] = pendingChunk{data: tail, fin: chunk.fin}
		break
	}
	return out, nil
}

// UpdateConnWindow applies a connection-level WINDOW_UPDATE increment
// and drains every stream with queued data that the new credit might
// unblock.
func (m *Machine) UpdateConnWindow(increment int32) ([]OutFrame, error) {
	m.connSendWindow += increment
	var out []OutFrame
	for id, ss := range m.streams {
		if len(ss.pending) == 0 {
			continue
		}
		frames, err := m.drainStream(id, ss)
		if err != nil {
			return out, err
		}
		out = append(out, frames...)
		if m.connSendWindow <= 0 {
			break
		}
	}
	return out, nil
}

// UpdateStreamWindow applies a per-stream WINDOW_UPDATE increment and
// drains that stream's queue.
func (m *Machine) UpdateStreamWindow(id uint32, increment int32) ([]OutFrame, error) {
	ss := m.streams[id]
	if ss == nil {
		return nil, nil
	}
	ss.sendWindow += increment
	return m.drainStream(id, ss)
}

func (m *Machine) applyNewInitialWindow(newVal uint32) {
	delta := int32(newVal) - int32(m.remoteInitialWindow)
	m.remoteInitialWindow = newVal
	for _, ss := range m.streams {
		ss.sendWindow += delta
	}
}

// ResetStream marks id's local and remote halves closed and returns a
// RST_STREAM(CANCEL) frame to write.
func (m *Machine) ResetStream(id uint32) ([]byte, error) {
	ss := m.streams[id]
	if ss == nil {
		return nil, &BadState{Text: "stream cannot be found"}
	}
	ss.local = HalfClosed
	ss.remote = HalfClosed
	return h2codec.EncodeRSTStream(id, http2.ErrCodeCancel)
}

// LocalState returns id's local half-state, or HalfClosed if the
// Machine no longer knows about id (treated as terminal).
func (m *Machine) LocalState(id uint32) HalfState {
	if ss, ok := m.streams[id]; ok {
		return ss.local
	}
	return HalfClosed
}

// RemoteState returns id's remote half-state, or HalfClosed if unknown.
func (m *Machine) RemoteState(id uint32) HalfState {
	if ss, ok := m.streams[id]; ok {
		return ss.remote
	}
	return HalfClosed
}

// Forget drops id's bookkeeping once the engine has determined the
// stream has reached end-of-life on both halves.
func (m *Machine) Forget(id uint32) { delete(m.streams, id) }

// LastStreamID returns the highest server-initiated (push) stream id
// this Machine has observed, for composing an outbound GOAWAY.
func (m *Machine) LastStreamID() uint32 { return m.lastRemoteStreamID }

// IgnoredFrame is a no-op hook kept for symmetry with frames the codec
// classifies as Ignore; CONTINUATION aggregation already happens
// inside the codec, so the Machine has no bookkeeping to do here.
func (m *Machine) IgnoredFrame() {}

// Frame feeds one decoded frame (as produced by h2codec.Parse with
// Kind == VerdictFrame) into the Machine, returning the resulting
// application event, if any, plus any DATA frames a WINDOW_UPDATE
// happened to unblock.
func (m *Machine) Frame(v h2codec.Verdict) (*Event, []OutFrame, error) {
	switch f := v.Frame.(type) {
	case *http2.SettingsFrame:
		return m.onSettings(f)
	case *http2.PingFrame:
		return nil, nil, nil
	case *http2.DataFrame:
		return m.onData(f)
	case *http2.MetaHeadersFrame:
		return m.onHeaders(f, f.Fields)
	case *http2.RSTStreamFrame:
		return m.onRSTStream(f)
	case *http2.WindowUpdateFrame:
		return m.onWindowUpdate(f)
	case *http2.GoAwayFrame:
		return &Event{
			Kind:         EventGoAway,
			Reason:       f.ErrCode,
			LastStreamID: f.LastStreamID,
			Debug:        f.DebugData(),
		}, nil, nil
	case *http2.PushPromiseFrame:
		return m.onPushPromise(f, v.Fields)
	default:
		return nil, nil, nil
	}
}

func (m *Machine) onSettings(f *http2.SettingsFrame) (*Event, []OutFrame, error) {
	if f.IsAck() {
		m.settingsAckPending = false
		return nil, nil, nil
	}
	_ = f.ForeachSetting(func(s http2.Setting) error {
		m.remoteSettings[s.ID] = s.Val
		switch s.ID {
		case http2.SettingHeaderTableSize:
			m.headers.SetEncoderMaxDynamicTableSize(s.Val)
		case http2.SettingInitialWindowSize:
			m.applyNewInitialWindow(s.Val)
		}
		return nil
	})
	return nil, nil, nil
}

func (m *Machine) onData(f *http2.DataFrame) (*Event, []OutFrame, error) {
	id := f.Header().StreamID
	ss := m.streams[id]
	if ss == nil {
		return nil, nil, &StreamError{StreamID: id, Code: http2.ErrCodeStreamClosed, Text: "DATA on unknown stream"}
	}
	payload := f.Data()
	fin := f.StreamEnded()
	if fin {
		ss.remote = HalfClosed
	}
	return &Event{Kind: EventData, StreamID: id, Fin: fin, Payload: payload}, nil, nil
}

func (m *Machine) onHeaders(f *http2.MetaHeadersFrame, fields []hpack.HeaderField) (*Event, []OutFrame, error) {
	id := f.Header().StreamID
	ss := m.streams[id]
	if ss == nil {
		return nil, nil, &StreamError{StreamID: id, Code: http2.ErrCodeProtocol, Text: "HEADERS on unknown stream"}
	}

	if ss.remote == HalfIdle {
		ss.remote = HalfOpen
	}

	pseudo, headers := splitPseudo(fields)
	fin := f.StreamEnded()

	if !ss.headersSeen && pseudo.Status >= 100 && pseudo.Status < 200 {
		return &Event{Kind: EventHeadersInform, StreamID: id, Headers: headers, Pseudo: pseudo}, nil, nil
	}
	if !ss.headersSeen {
		ss.headersSeen = true
		if fin {
			ss.remote = HalfClosed
		}
		return &Event{Kind: EventHeadersFinal, StreamID: id, Fin: fin, Headers: headers, Pseudo: pseudo}, nil, nil
	}

	ss.remote = HalfClosed
	return &Event{Kind: EventTrailers, StreamID: id, Headers: headers, Pseudo: pseudo}, nil, nil
}

func (m *Machine) onRSTStream(f *http2.RSTStreamFrame) (*Event, []OutFrame, error) {
	id := f.Header().StreamID
	if ss, ok := m.streams[id]; ok {
		ss.local = HalfClosed
		ss.remote = HalfClosed
	}
	return &Event{Kind: EventRSTStream, StreamID: id, Reason: f.ErrCode}, nil, nil
}

func (m *Machine) onWindowUpdate(f *http2.WindowUpdateFrame) (*Event, []OutFrame, error) {
	id := f.Header().StreamID
	if id == 0 {
		out, err := m.UpdateConnWindow(int32(f.Increment))
		return nil, out, err
	}
	out, err := m.UpdateStreamWindow(id, int32(f.Increment))
	return nil, out, err
}

func (m *Machine) onPushPromise(f *http2.PushPromiseFrame, fields []hpack.HeaderField) (*Event, []OutFrame, error) {
	parentID := f.Header().StreamID
	promisedID := f.PromiseID
	pseudo, headers := splitPseudo(fields)

	// remote starts idle, exactly like InitStream seeds a client-initiated
	// stream: the promised stream's first HEADERS still has to make the
	// idle->open transition in onHeaders so the engine's idle check
	// (dispatchFrame) fires response_start for it.
	m.streams[promisedID] = &streamState{
		local:      HalfClosed,
		remote:     HalfIdle,
		sendWindow: int32(m.remoteInitialWindow),
		recvWindow: int32(m.localSettings[http2.SettingInitialWindowSize]),
	}
	if promisedID > m.lastRemoteStreamID {
		m.lastRemoteStreamID = promisedID
	}

	return &Event{
		Kind:       EventPushPromise,
		ParentID:   parentID,
		PromisedID: promisedID,
		Headers:    headers,
		Pseudo:     pseudo,
	}, nil, nil
}

func splitPseudo(fields []hpack.HeaderField) (PseudoHeaders, []hpack.HeaderField) {
	var p PseudoHeaders
	headers := make([]hpack.HeaderField, 0, len(fields))
	for _, f := range fields {
		switch f.Name {
		case ":method":
			p.Method = f.Value
		case ":scheme":
			p.Scheme = f.Value
		case ":authority":
			p.Authority = f.Value
		case ":path":
			p.Path = f.Value
		case ":status":
			p.Status = parseStatus(f.Value)
		default:
			headers = append(headers, f)
		}
	}
	return p, headers
}

func parseStatus(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
