package h2engine

import "golang.org/x/net/http2/hpack"

// MessageKind discriminates the application-facing messages the
// engine delivers to a stream's reply target.
type MessageKind int

const (
	// MsgInform carries a 1xx informational response.
	MsgInform MessageKind = iota
	// MsgResponse carries the final response status line and headers.
	MsgResponse
	// MsgData carries one chunk of response body, already passed
	// through the content-handler pipeline.
	MsgData
	// MsgTrailers carries the response trailer block.
	MsgTrailers
	// MsgPush announces a server push promise.
	MsgPush
	// MsgError is the terminal failure message for a stream. A
	// connection-wide failure is delivered as one MsgError per live
	// stream, each carrying that stream's Ref.
	MsgError
)

// Message is the single envelope type every application-facing
// delivery uses; Kind selects which fields are meaningful.
type Message struct {
	Kind MessageKind

	Ref any

	Status  int
	Fin     bool
	Headers []hpack.HeaderField
	Payload []byte

	ParentRef   any
	PromisedRef any
	Method      string
	URI         string

	Cause error
}

// ReplyTarget is the capability a caller supplies per-stream to
// receive that stream's application messages. Delivery must be
// fire-and-forget: Deliver must never block the engine loop.
type ReplyTarget interface {
	Deliver(Message)
}

// ReplyTargetFunc adapts a plain function to ReplyTarget.
type ReplyTargetFunc func(Message)

func (f ReplyTargetFunc) Deliver(m Message) { f(m) }

// OwnerNotifier is the optional capability an engine's owner handle
// may implement to learn when the engine itself goes down, as opposed
// to any single stream failing. Engines built without an owner that
// cares about this simply never see it called.
type OwnerNotifier interface {
	EngineDown(cause error)
}

// DiscardReplyTarget is the no-op ReplyTarget: every message vanishes.
var DiscardReplyTarget ReplyTarget = discardReplyTarget{}

type discardReplyTarget struct{}

func (discardReplyTarget) Deliver(Message) {}

// StreamEvent is the telemetry record for a single-stream lifecycle
// callback.
type StreamEvent struct {
	Ref       any
	Method    string
	Authority string
	Path      string
	Status    int
	Headers   []hpack.HeaderField
}

// ConnEvent is the telemetry record for a connection-level lifecycle
// callback.
type ConnEvent struct {
	Cause error
}

// EventHandler is the instrumentation capability threaded through the
// engine: one method per reserved telemetry callback. Implementations
// must be non-blocking; the engine calls these inline on its single
// actor goroutine.
type EventHandler interface {
	RequestStart(StreamEvent)
	RequestHeaders(StreamEvent)
	RequestEnd(StreamEvent)
	ResponseStart(StreamEvent)
	ResponseInform(StreamEvent)
	ResponseHeaders(StreamEvent)
	ResponseTrailers(StreamEvent)
	ResponseEnd(StreamEvent)
	Init(ConnEvent)
	ConnectStart(ConnEvent)
	ConnectEnd(ConnEvent)
	Disconnect(ConnEvent)
	Terminate(ConnEvent)
}

// NoopEventHandler implements EventHandler with every callback a
// no-op, the default an engine falls back to when the coordinator
// supplies none.
type NoopEventHandler struct{}

func (NoopEventHandler) RequestStart(StreamEvent)      {}
func (NoopEventHandler) RequestHeaders(StreamEvent)     {}
func (NoopEventHandler) RequestEnd(StreamEvent)         {}
func (NoopEventHandler) ResponseStart(StreamEvent)      {}
func (NoopEventHandler) ResponseInform(StreamEvent)     {}
func (NoopEventHandler) ResponseHeaders(StreamEvent)    {}
func (NoopEventHandler) ResponseTrailers(StreamEvent)   {}
func (NoopEventHandler) ResponseEnd(StreamEvent)        {}
func (NoopEventHandler) Init(ConnEvent)                 {}
func (NoopEventHandler) ConnectStart(ConnEvent)         {}
func (NoopEventHandler) ConnectEnd(ConnEvent)           {}
func (NoopEventHandler) Disconnect(ConnEvent)           {}
func (NoopEventHandler) Terminate(ConnEvent)            {}
