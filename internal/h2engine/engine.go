// Package h2engine is the stateful shell around the Protocol Machine:
// it owns the transport, the machine, and the stream table, and is the
// only place in this module that performs I/O. One Engine drives
// exactly one HTTP/2 connection as a single-threaded cooperative
// actor — every mutation of its state happens on the goroutine running
// Run, driven by inbound bytes, outbound commands, and keepalive ticks.
package h2engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/perbu/h2engine/internal/h2body"
	"github.com/perbu/h2engine/internal/h2codec"
	"github.com/perbu/h2engine/internal/h2proto"
	"github.com/perbu/h2engine/internal/logging"
)

// hopByHop lists the headers stripped from every outbound request per
// RFC 7540 §8.1.2.2; HTTP/2 has no notion of connection-specific
// fields.
var hopByHop = map[string]bool{
	"host":              true,
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// PushRef is the ref type the engine mints for server-pushed streams,
// since those have no caller-chosen ref to reuse.
type PushRef uint64

// StreamInfo is the result of an introspection query.
type StreamInfo struct {
	Ref     any
	ReplyTo ReplyTarget
	Running bool
}

type streamHandler struct {
	replyTo ReplyTarget
	body    h2body.Handler
}

// Engine is one HTTP/2 connection's protocol shell.
type Engine struct {
	logger       *logging.Logger
	transport    Transport
	owner        any
	opts         Options
	eventHandler EventHandler

	machine *h2proto.Machine
	streams *h2proto.StreamTable
	buffer  []byte

	handlers map[uint32]*streamHandler
	nextPush uint64

	inbound  chan []byte
	commands chan any
	closeCh  chan struct{}

	keepaliveTicker *time.Ticker
}

// NewEngine validates opts, constructs a fresh Protocol Machine, and
// writes the connection preface plus initial SETTINGS to transport
// before returning. Call Run to start the actor loop; Run reads inbound
// bytes from transport itself, and Feed injects further chunks into the
// same inbound queue.
func NewEngine(transport Transport, owner any, rawOpts map[string]any, eventHandler EventHandler, logger *logging.Logger) (*Engine, error) {
	opts, err := ParseOptions(rawOpts)
	if err != nil {
		return nil, err
	}
	if eventHandler == nil {
		eventHandler = NoopEventHandler{}
	}
	if logger == nil {
		logger = logging.NewLogger("h2")
	}

	machine, preface, err := h2proto.NewMachine(nil)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:       logger,
		transport:    transport,
		owner:        owner,
		opts:         opts,
		eventHandler: eventHandler,
		machine:      machine,
		streams:      h2proto.NewStreamTable(),
		handlers:     map[uint32]*streamHandler{},
		inbound:      make(chan []byte, 8),
		commands:     make(chan any, 32),
		closeCh:      make(chan struct{}),
	}

	if opts.Keepalive > 0 {
		e.keepaliveTicker = time.NewTicker(opts.Keepalive)
	}

	if err := e.transport.Send(preface); err != nil {
		return nil, err
	}
	eventHandler.Init(ConnEvent{})
	return e, nil
}

// Feed delivers one chunk of inbound transport bytes to the engine.
// It never blocks the transport reader for long: the channel is
// buffered, and the engine drains it on its own goroutine.
func (e *Engine) Feed(buf []byte) { e.inbound <- buf }

// Headers issues a request's HEADERS with no body; the caller supplies
// the body later via Data.
func (e *Engine) Headers(ref any, replyTo ReplyTarget, method, host string, port int, path string, headers []hpack.HeaderField) {
	e.commands <- &headersCmd{ref: ref, replyTo: replyTo, method: method, host: host, port: port, path: path, headers: headers}
}

// Request issues a request's HEADERS followed immediately by its
// complete body.
func (e *Engine) Request(ref any, replyTo ReplyTarget, method, host string, port int, path string, headers []hpack.HeaderField, body []byte) {
	e.commands <- &requestCmd{headersCmd: headersCmd{ref: ref, replyTo: replyTo, method: method, host: host, port: port, path: path, headers: headers}, body: body}
}

// Data enqueues one more chunk of a request body previously opened via
// Headers. replyTo is carried on every call (not just the initial
// Headers) so a badstate error can still be delivered even when ref
// turns out not to be in the stream table.
func (e *Engine) Data(ref any, replyTo ReplyTarget, fin bool, payload []byte) {
	e.commands <- &dataCmd{ref: ref, replyTo: replyTo, fin: fin, payload: payload}
}

// Cancel resets a stream locally; cancellation is idempotent and
// silent on an unknown ref (the caller still receives a badstate
// message).
func (e *Engine) Cancel(ref any, replyTo ReplyTarget) {
	e.commands <- &cancelCmd{ref: ref, replyTo: replyTo}
}

// Keepalive sends a PING with an all-zero opaque payload.
func (e *Engine) Keepalive() {
	e.commands <- &keepaliveCmd{}
}

// Close tears the connection down from the coordinator's side: every
// live stream is told the connection was lost.
func (e *Engine) Close() { close(e.closeCh) }

// StreamInfo answers an introspection query about ref.
func (e *Engine) StreamInfo(ref any) (StreamInfo, bool) {
	resp := make(chan streamInfoResult, 1)
	e.commands <- &streamInfoQuery{ref: ref, resp: resp}
	r := <-resp
	return r.info, r.ok
}

// Down returns the refs of every stream still live. The query is
// answered by the actor loop, so Down returns only while Run is
// executing; once Run has returned, a call to Down blocks indefinitely.
func (e *Engine) Down() []any {
	resp := make(chan []any, 1)
	e.commands <- &downQuery{resp: resp}
	return <-resp
}

// Run drives the actor loop until ctx is cancelled, the transport
// reports a read error, a connection error or GOAWAY terminates the
// connection, or the coordinator calls Close.
func (e *Engine) Run(ctx context.Context) error {
	var keepaliveC <-chan time.Time
	if e.keepaliveTicker != nil {
		keepaliveC = e.keepaliveTicker.C
		defer e.keepaliveTicker.Stop()
	}

	readErrCh := make(chan error, 1)
	go e.readLoop(ctx, readErrCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrCh:
			e.closeAll()
			return err

		case buf := <-e.inbound:
			if stop := e.handle(buf); stop {
				return nil
			}

		case raw := <-e.commands:
			if stop := e.dispatch(raw); stop {
				return nil
			}

		case <-keepaliveC:
			e.sendKeepalive()

		case <-e.closeCh:
			e.closeAll()
			return nil
		}
	}
}

// readLoop pumps Transport.Recv into the inbound queue (the one Feed
// also writes to) until it errors or ctx ends;
// it is the only goroutine besides the actor loop itself, matching the
// "single scheduling entity" model while still letting blocking reads
// happen off the actor's own goroutine.
func (e *Engine) readLoop(ctx context.Context, errCh chan<- error) {
	for {
		buf, err := e.transport.Recv()
		if err != nil {
			errCh <- err
			return
		}
		if len(buf) == 0 {
			continue
		}
		select {
		case e.inbound <- buf:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) sendKeepalive() {
	wire, err := h2codec.EncodePing(false, [8]byte{})
	if err != nil {
		e.logger.Error("encode keepalive PING: %v", err)
		return
	}
	if err := e.transport.Send(wire); err != nil {
		e.logger.Error("send keepalive PING: %v", err)
	}
}

// --- ingress: §4.4.1 ---

func (e *Engine) handle(buf []byte) (stop bool) {
	e.buffer = append(e.buffer, buf...)

	for {
		maxFrame := e.machine.MaxFrameSize()
		v := h2codec.Parse(e.buffer, maxFrame, e.machine.Decoder())

		switch v.Kind {
		case h2codec.VerdictMore:
			return false

		case h2codec.VerdictIgnore:
			e.machine.IgnoredFrame()
			e.buffer = e.buffer[v.Consumed:]
			continue

		case h2codec.VerdictStreamError:
			e.buffer = e.buffer[v.Consumed:]
			e.handleStreamError(v.StreamID, v.Reason, v.Text)
			continue

		case h2codec.VerdictConnectionError:
			e.terminate(&h2proto.ConnectionError{Code: v.Reason, Text: v.Text})
			return true

		case h2codec.VerdictFrame:
			e.buffer = e.buffer[v.Consumed:]
			if stop := e.dispatchFrame(v); stop {
				return true
			}
			continue
		}
	}
}

func (e *Engine) handleStreamError(id uint32, reason http2.ErrCode, text string) {
	wire, err := h2codec.EncodeRSTStream(id, reason)
	if err == nil {
		e.transport.Send(wire)
	}
	e.failStream(id, &h2proto.StreamError{StreamID: id, Code: reason, Text: text})
}

func (e *Engine) failStream(id uint32, cause error) {
	entry, ok := e.streams.ByID(id)
	if !ok {
		return
	}
	e.deliver(e.replyTo(entry), Message{Kind: MsgError, Ref: entry.Ref, Cause: cause})
	delete(e.handlers, id)
	e.streams.Delete(id)
	e.machine.Forget(id)
}

// dispatchFrame feeds one parsed frame to the Machine and performs the
// engine-side effects of the resulting event, per §4.4.2.
func (e *Engine) dispatchFrame(v h2codec.Verdict) (stop bool) {
	if hf, ok := v.Frame.(*http2.MetaHeadersFrame); ok {
		id := hf.Header().StreamID
		if e.machine.RemoteState(id) == h2proto.HalfIdle {
			if entry, ok := e.streams.ByID(id); ok {
				e.eventHandler.ResponseStart(StreamEvent{Ref: entry.Ref})
			}
		}
	}

	ev, toSend, err := e.machine.Frame(v)
	e.writeOutFrames(toSend)
	if err != nil {
		return e.handleMachineError(err)
	}
	e.ackFrameIfNeeded(v.Frame)
	if ev == nil {
		return false
	}
	return e.dispatchEvent(ev)
}

func (e *Engine) handleMachineError(err error) bool {
	switch cause := err.(type) {
	case *h2proto.StreamError:
		e.handleStreamError(cause.StreamID, cause.Code, cause.Text)
		return false
	case *h2proto.ConnectionError:
		e.terminate(cause)
		return true
	default:
		e.terminate(&h2proto.ConnectionError{Code: http2.ErrCodeInternal, Text: err.Error()})
		return true
	}
}

func (e *Engine) ackFrameIfNeeded(frame http2.Frame) {
	switch f := frame.(type) {
	case *http2.SettingsFrame:
		if f.IsAck() {
			return
		}
		wire, err := h2codec.EncodeSettingsAck()
		if err == nil {
			e.transport.Send(wire)
		}
	case *http2.PingFrame:
		if f.IsAck() {
			return
		}
		wire, err := h2codec.EncodePing(true, f.Data)
		if err == nil {
			e.transport.Send(wire)
		}
	}
}

func (e *Engine) writeOutFrames(frames []h2proto.OutFrame) {
	for _, f := range frames {
		if err := e.transport.Send(f.Data); err != nil {
			e.logger.Error("write frame for stream %d: %v", f.StreamID, err)
			return
		}
		if f.Fin {
			entry, ok := e.streams.ByID(f.StreamID)
			if ok {
				e.eventHandler.RequestEnd(StreamEvent{Ref: entry.Ref})
			}
			e.checkEndOfLife(f.StreamID)
		}
	}
}

func (e *Engine) dispatchEvent(ev *h2proto.Event) (stop bool) {
	switch ev.Kind {
	case h2proto.EventData:
		e.onDataEvent(ev)
	case h2proto.EventHeadersInform:
		e.onHeadersInform(ev)
	case h2proto.EventHeadersFinal:
		e.onHeadersFinal(ev)
	case h2proto.EventTrailers:
		e.onTrailers(ev)
	case h2proto.EventRSTStream:
		e.onRSTStream(ev)
	case h2proto.EventPushPromise:
		e.onPushPromise(ev)
	case h2proto.EventGoAway:
		e.terminate(&goAwayCause{reason: ev.Reason, lastStreamID: ev.LastStreamID})
		return true
	}
	return false
}

func (e *Engine) onDataEvent(ev *h2proto.Event) {
	entry, ok := e.streams.ByID(ev.StreamID)
	if !ok {
		return
	}

	wireSize := len(ev.Payload)

	payload := ev.Payload
	if h, ok := e.handlers[ev.StreamID]; ok && h.body != nil {
		decoded, err := h.body.Decode(payload)
		if err != nil {
			e.handleStreamError(ev.StreamID, http2.ErrCodeInternal, err.Error())
			return
		}
		payload = decoded
	}

	// Flow control is accounted against what actually arrived on the
	// wire, not the body handler's (possibly resized) output.
	if wireSize > 0 {
		e.creditWindows(ev.StreamID, uint32(wireSize), !ev.Fin)
	}

	e.deliver(e.replyTo(entry), Message{Kind: MsgData, Ref: entry.Ref, Fin: ev.Fin, Payload: payload})

	if ev.Fin {
		e.eventHandler.ResponseEnd(StreamEvent{Ref: entry.Ref})
		if h, ok := e.handlers[ev.StreamID]; ok && h.body != nil {
			h.body.Close()
		}
		delete(e.handlers, ev.StreamID)
	}

	e.checkEndOfLife(ev.StreamID)
}

func (e *Engine) creditWindows(id uint32, size uint32, creditStream bool) {
	connWire, err := h2codec.EncodeWindowUpdate(0, size)
	if err == nil {
		e.transport.Send(connWire)
	}
	if creditStream {
		streamWire, err := h2codec.EncodeWindowUpdate(id, size)
		if err == nil {
			e.transport.Send(streamWire)
		}
	}
}

func (e *Engine) onHeadersInform(ev *h2proto.Event) {
	entry, ok := e.streams.ByID(ev.StreamID)
	if !ok {
		return
	}
	e.deliver(e.replyTo(entry), Message{Kind: MsgInform, Ref: entry.Ref, Status: ev.Pseudo.Status, Headers: ev.Headers})
	e.eventHandler.ResponseInform(StreamEvent{Ref: entry.Ref, Status: ev.Pseudo.Status, Headers: ev.Headers})
}

func (e *Engine) onHeadersFinal(ev *h2proto.Event) {
	entry, ok := e.streams.ByID(ev.StreamID)
	if !ok {
		return
	}
	e.deliver(e.replyTo(entry), Message{Kind: MsgResponse, Ref: entry.Ref, Fin: ev.Fin, Status: ev.Pseudo.Status, Headers: ev.Headers})
	e.eventHandler.ResponseHeaders(StreamEvent{Ref: entry.Ref, Status: ev.Pseudo.Status, Headers: ev.Headers})

	if ev.Fin {
		e.eventHandler.ResponseEnd(StreamEvent{Ref: entry.Ref})
		delete(e.handlers, ev.StreamID)
	} else if handler, err := e.opts.ContentHandlers(ev.Pseudo.Status, ev.Headers); err == nil {
		e.handlers[ev.StreamID] = &streamHandler{replyTo: e.replyTo(entry), body: handler}
	}

	e.checkEndOfLife(ev.StreamID)
}

func (e *Engine) onTrailers(ev *h2proto.Event) {
	entry, ok := e.streams.ByID(ev.StreamID)
	if !ok {
		return
	}
	e.deliver(e.replyTo(entry), Message{Kind: MsgTrailers, Ref: entry.Ref, Headers: ev.Headers})
	e.eventHandler.ResponseTrailers(StreamEvent{Ref: entry.Ref, Headers: ev.Headers})
	e.eventHandler.ResponseEnd(StreamEvent{Ref: entry.Ref})
	if h, ok := e.handlers[ev.StreamID]; ok && h.body != nil {
		h.body.Close()
	}
	delete(e.handlers, ev.StreamID)
	e.checkEndOfLife(ev.StreamID)
}

func (e *Engine) onRSTStream(ev *h2proto.Event) {
	entry, ok := e.streams.ByID(ev.StreamID)
	if !ok {
		return
	}
	e.deliver(e.replyTo(entry), Message{
		Kind: MsgError,
		Ref:  entry.Ref,
		Cause: &h2proto.StreamError{StreamID: ev.StreamID, Code: ev.Reason, Text: "Stream reset by server."},
	})
	delete(e.handlers, ev.StreamID)
	e.streams.Delete(ev.StreamID)
	e.machine.Forget(ev.StreamID)
}

func (e *Engine) onPushPromise(ev *h2proto.Event) {
	parent, ok := e.streams.ByID(ev.ParentID)
	if !ok {
		return
	}
	e.nextPush++
	ref := PushRef(e.nextPush)
	e.streams.Insert(&h2proto.StreamEntry{ID: ev.PromisedID, Ref: ref, ReplyTo: parent.ReplyTo})

	uri := ev.Pseudo.Scheme + "://" + ev.Pseudo.Authority + ev.Pseudo.Path
	e.deliver(e.replyTo(parent), Message{
		Kind:        MsgPush,
		Ref:         parent.Ref,
		ParentRef:   parent.Ref,
		PromisedRef: ref,
		Method:      ev.Pseudo.Method,
		URI:         uri,
		Headers:     ev.Headers,
	})
}

// checkEndOfLife implements §4.4.4: a stream is removed once both
// halves are terminal, strictly after every terminal message and event
// for it has already been emitted (which dispatchEvent and
// writeOutFrames above always do before calling this).
func (e *Engine) checkEndOfLife(id uint32) {
	if e.machine.LocalState(id) != h2proto.HalfClosed || e.machine.RemoteState(id) != h2proto.HalfClosed {
		return
	}
	delete(e.handlers, id)
	e.streams.Delete(id)
	e.machine.Forget(id)
}

// --- egress: §4.4.3 ---

type headersCmd struct {
	ref     any
	replyTo ReplyTarget
	method  string
	host    string
	port    int
	path    string
	headers []hpack.HeaderField
}

type requestCmd struct {
	headersCmd
	body []byte
}

type dataCmd struct {
	ref     any
	replyTo ReplyTarget
	fin     bool
	payload []byte
}

type cancelCmd struct {
	ref     any
	replyTo ReplyTarget
}

type keepaliveCmd struct{}

type streamInfoResult struct {
	info StreamInfo
	ok   bool
}

type streamInfoQuery struct {
	ref  any
	resp chan streamInfoResult
}

type downQuery struct {
	resp chan []any
}

func (e *Engine) dispatch(raw any) (stop bool) {
	switch cmd := raw.(type) {
	case *headersCmd:
		e.doHeaders(cmd, nil)
	case *requestCmd:
		e.doHeaders(&cmd.headersCmd, cmd.body)
	case *dataCmd:
		e.doData(cmd.ref, cmd.replyTo, cmd.fin, cmd.payload)
	case *cancelCmd:
		e.doCancel(cmd.ref, cmd.replyTo)
	case *keepaliveCmd:
		e.sendKeepalive()
	case *streamInfoQuery:
		e.doStreamInfo(cmd)
	case *downQuery:
		e.doDown(cmd)
	}
	return false
}

func authorityFor(headers []hpack.HeaderField, host string, port int, scheme string) string {
	for _, h := range headers {
		if h.Name == "host" {
			return h.Value
		}
	}
	defaultPort := 80
	if scheme == "https" {
		defaultPort = 443
	}
	if port == 0 || port == defaultPort {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

func stripHopByHop(headers []hpack.HeaderField) []hpack.HeaderField {
	out := make([]hpack.HeaderField, 0, len(headers))
	for _, h := range headers {
		if hopByHop[h.Name] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (e *Engine) doHeaders(cmd *headersCmd, body []byte) {
	id := e.machine.InitStream()
	scheme := e.transport.Kind().scheme()
	authority := authorityFor(cmd.headers, cmd.host, cmd.port, scheme)
	headers := stripHopByHop(cmd.headers)
	pseudo := h2proto.PseudoHeaders{Method: cmd.method, Scheme: scheme, Authority: authority, Path: cmd.path}

	if body != nil {
		headers = append(headers, hpack.HeaderField{Name: "content-length", Value: strconv.Itoa(len(body))})
	}

	e.eventHandler.RequestStart(StreamEvent{Ref: cmd.ref, Method: cmd.method, Authority: authority, Path: cmd.path})

	// HEADERS always carries END_STREAM=0 here: headers() leaves the
	// stream open for a later Data call, and request() closes it
	// itself via the immediate doData(fin=true) below.
	const fin = false

	block, err := e.machine.PrepareHeaders(id, fin, pseudo, headers)
	if err != nil {
		e.deliver(cmd.replyTo, Message{Kind: MsgError, Ref: cmd.ref, Cause: err})
		return
	}

	e.streams.Insert(&h2proto.StreamEntry{ID: id, Ref: cmd.ref, ReplyTo: cmd.replyTo})

	wire, err := h2codec.EncodeHeaders(id, e.machine.PeerMaxFrameSize(), block, fin)
	if err != nil {
		e.failStream(id, err)
		return
	}
	if err := e.transport.Send(wire); err != nil {
		e.logger.Error("send HEADERS for stream %d: %v", id, err)
		return
	}
	e.eventHandler.RequestHeaders(StreamEvent{Ref: cmd.ref, Method: cmd.method, Authority: authority, Path: cmd.path})

	if body != nil {
		e.doData(cmd.ref, cmd.replyTo, true, body)
	}
}

func (e *Engine) doData(ref any, replyTo ReplyTarget, fin bool, payload []byte) {
	entry, ok := e.streams.ByRef(ref)
	if !ok {
		e.deliver(replyTo, Message{Kind: MsgError, Ref: ref, Cause: &h2proto.BadState{Text: "cannot be found"}})
		return
	}
	if e.machine.LocalState(entry.ID) == h2proto.HalfClosed {
		e.deliver(e.replyTo(entry), Message{Kind: MsgError, Ref: ref, Cause: &h2proto.BadState{Text: "already closed"}})
		return
	}

	frames, err := e.machine.SendOrQueueData(entry.ID, fin, payload)
	if err != nil {
		e.deliver(e.replyTo(entry), Message{Kind: MsgError, Ref: ref, Cause: err})
		return
	}
	e.writeOutFrames(frames)
}

func (e *Engine) doCancel(ref any, replyTo ReplyTarget) {
	entry, ok := e.streams.ByRef(ref)
	if !ok {
		e.deliver(replyTo, Message{Kind: MsgError, Ref: ref, Cause: &h2proto.BadState{Text: "cannot be found"}})
		return
	}
	wire, err := e.machine.ResetStream(entry.ID)
	if err == nil {
		e.transport.Send(wire)
	}
	delete(e.handlers, entry.ID)
	e.streams.Delete(entry.ID)
	e.machine.Forget(entry.ID)
}

func (e *Engine) doStreamInfo(q *streamInfoQuery) {
	entry, ok := e.streams.ByRef(q.ref)
	if !ok {
		q.resp <- streamInfoResult{}
		return
	}
	q.resp <- streamInfoResult{info: StreamInfo{Ref: entry.Ref, ReplyTo: e.replyTo(entry), Running: true}, ok: true}
}

func (e *Engine) doDown(q *downQuery) {
	var refs []any
	e.streams.Each(func(entry *h2proto.StreamEntry) { refs = append(refs, entry.Ref) })
	q.resp <- refs
}

// --- shutdown: §4.4.5 ---

// closeAll delivers a "connection lost" error to every live stream, in
// stable iteration order, without attempting to notify the peer. Used
// when the transport itself failed or the coordinator asked to close.
func (e *Engine) closeAll() {
	var entries []*h2proto.StreamEntry
	e.streams.Each(func(entry *h2proto.StreamEntry) { entries = append(entries, entry) })
	for _, entry := range entries {
		e.deliver(e.replyTo(entry), Message{Kind: MsgError, Ref: entry.Ref, Cause: &closedError{text: "The connection was lost."}})
	}
	e.eventHandler.Disconnect(ConnEvent{})
	e.transport.Close()
	e.notifyOwner(&closedError{text: "The connection was lost."})
}

// terminate sends GOAWAY carrying the machine's last observed stream
// id and a reason derived from cause, then delivers cause to every
// live stream and tears the transport down.
func (e *Engine) terminate(cause error) {
	reason := http2.ErrCodeNo
	if ce, ok := cause.(*h2proto.ConnectionError); ok {
		reason = ce.Code
	}
	wire, err := h2codec.EncodeGoAway(e.machine.LastStreamID(), reason, nil)
	if err == nil {
		e.transport.Send(wire)
	}

	var entries []*h2proto.StreamEntry
	e.streams.Each(func(entry *h2proto.StreamEntry) { entries = append(entries, entry) })
	for _, entry := range entries {
		e.deliver(e.replyTo(entry), Message{Kind: MsgError, Ref: entry.Ref, Cause: cause})
	}
	e.eventHandler.Terminate(ConnEvent{Cause: cause})
	e.transport.Close()
	e.notifyOwner(cause)
}

func (e *Engine) notifyOwner(cause error) {
	if n, ok := e.owner.(OwnerNotifier); ok {
		n.EngineDown(cause)
	}
}

// replyTo recovers the concrete ReplyTarget a StreamEntry carries.
// StreamEntry.ReplyTo is typed any in h2proto so that package stays
// free of any import on h2engine; every entry this engine inserts was
// built from a ReplyTarget, so the assertion always holds.
func (e *Engine) replyTo(entry *h2proto.StreamEntry) ReplyTarget {
	rt, _ := entry.ReplyTo.(ReplyTarget)
	return rt
}

func (e *Engine) deliver(target ReplyTarget, msg Message) {
	if target == nil {
		return
	}
	target.Deliver(msg)
}

// goAwayCause is the cause delivered to live streams when the peer
// sends GOAWAY: a "stop" rather than a hard connection error.
type goAwayCause struct {
	reason       http2.ErrCode
	lastStreamID uint32
}

func (c *goAwayCause) Error() string {
	return fmt.Sprintf("http2: stop (goaway, last_stream_id=%d): Server is going away.", c.lastStreamID)
}

// closedError is the cause delivered when the transport itself failed
// or the coordinator tore the connection down, rather than a protocol
// violation.
type closedError struct{ text string }

func (c *closedError) Error() string { return "http2: " + c.text }
