package h2proto

import (
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/perbu/h2engine/internal/h2codec"
)

func TestNewMachineEmitsPrefaceAndSettings(t *testing.T) {
	_, out, err := NewMachine(nil)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if string(out[:len(ClientPreface)]) != ClientPreface {
		t.Fatalf("NewMachine() output does not start with the client preface")
	}
	if len(out) == len(ClientPreface) {
		t.Fatal("NewMachine() output has no SETTINGS frame appended")
	}
}

func TestInitStreamAssignsOddIncreasingIDs(t *testing.T) {
	m, _, _ := NewMachine(nil)
	a := m.InitStream()
	b := m.InitStream()
	if a != 1 || b != 3 {
		t.Fatalf("InitStream() ids = %d, %d; want 1, 3", a, b)
	}
}

func TestSendOrQueueDataBlocksOnWindow(t *testing.T) {
	m, _, _ := NewMachine(nil)
	id := m.InitStream()
	if _, err := m.PrepareHeaders(id, false, PseudoHeaders{Method: "POST", Scheme: "https", Authority: "x", Path: "/"}, nil); err != nil {
		t.Fatalf("PrepareHeaders: %v", err)
	}

	payload := make([]byte, 100000)
	frames, err := m.SendOrQueueData(id, true, payload)
	if err != nil {
		t.Fatalf("SendOrQueueData: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("SendOrQueueData() produced %d frames, want 1 (partial send)", len(frames))
	}
	if frames[0].Fin {
		t.Error("first partial DATA frame carries fin, want false")
	}
	if m.LocalState(id) != HalfOpen {
		t.Errorf("local state = %v, want open (still has queued data)", m.LocalState(id))
	}

	// Both windows are exhausted by the first frame; credit the
	// connection window before the stream window releases the rest.
	if _, err := m.UpdateConnWindow(100000); err != nil {
		t.Fatalf("UpdateConnWindow: %v", err)
	}
	more, err := m.UpdateStreamWindow(id, 100000)
	if err != nil {
		t.Fatalf("UpdateStreamWindow: %v", err)
	}
	if len(more) != 1 {
		t.Fatalf("UpdateStreamWindow() produced %d frames, want 1 (remainder)", len(more))
	}
	if !more[0].Fin {
		t.Error("final DATA frame missing fin")
	}
	if m.LocalState(id) != HalfClosed {
		t.Errorf("local state after drain = %v, want closed", m.LocalState(id))
	}
}

func TestFrameSettingsAckClearsPending(t *testing.T) {
	m, _, _ := NewMachine(nil)

	ackWire, err := h2codec.EncodeSettingsAck()
	if err != nil {
		t.Fatalf("EncodeSettingsAck: %v", err)
	}
	dec := hpack.NewDecoder(4096, nil)
	v := h2codec.Parse(ackWire, 16384, dec)
	if v.Kind != h2codec.VerdictFrame {
		t.Fatalf("Parse() kind = %v", v.Kind)
	}
	ev, toSend, err := m.Frame(v)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if ev != nil || len(toSend) != 0 {
		t.Errorf("SETTINGS ack produced event/frames, want none")
	}
	if m.settingsAckPending {
		t.Error("settingsAckPending still true after ack")
	}
}

func TestFrameHeadersFinalThenTrailers(t *testing.T) {
	m, _, _ := NewMachine(nil)
	id := m.InitStream()
	if _, err := m.PrepareHeaders(id, true, PseudoHeaders{Method: "GET", Scheme: "https", Authority: "x", Path: "/"}, nil); err != nil {
		t.Fatalf("PrepareHeaders: %v", err)
	}

	hc := h2codec.NewHeaderCodec(4096)
	block, err := hc.EncodeHeaderBlock([]hpack.HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "text/plain"},
	})
	if err != nil {
		t.Fatalf("EncodeHeaderBlock: %v", err)
	}
	wire, err := h2codec.EncodeHeaders(id, 16384, block, false)
	if err != nil {
		t.Fatalf("EncodeHeaders: %v", err)
	}
	v := h2codec.Parse(wire, 16384, hc.Decoder())
	ev, _, err := m.Frame(v)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if ev == nil || ev.Kind != EventHeadersFinal {
		t.Fatalf("Frame() event = %+v, want EventHeadersFinal", ev)
	}
	if ev.Pseudo.Status != 200 {
		t.Errorf("status = %d, want 200", ev.Pseudo.Status)
	}

	trailerBlock, err := hc.EncodeHeaderBlock([]hpack.HeaderField{{Name: "x-trailer", Value: "done"}})
	if err != nil {
		t.Fatalf("EncodeHeaderBlock trailers: %v", err)
	}
	trailerWire, err := h2codec.EncodeHeaders(id, 16384, trailerBlock, true)
	if err != nil {
		t.Fatalf("EncodeHeaders trailers: %v", err)
	}
	v2 := h2codec.Parse(trailerWire, 16384, hc.Decoder())
	ev2, _, err := m.Frame(v2)
	if err != nil {
		t.Fatalf("Frame trailers: %v", err)
	}
	if ev2 == nil || ev2.Kind != EventTrailers {
		t.Fatalf("Frame() trailer event = %+v, want EventTrailers", ev2)
	}
	if m.RemoteState(id) != HalfClosed {
		t.Errorf("remote state = %v, want closed", m.RemoteState(id))
	}
}

func TestFrameDataOnUnknownStreamIsStreamError(t *testing.T) {
	m, _, _ := NewMachine(nil)
	wire, err := h2codec.EncodeData(99, []byte("x"), true)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	dec := hpack.NewDecoder(4096, nil)
	v := h2codec.Parse(wire, 16384, dec)
	_, _, err = m.Frame(v)
	var se *StreamError
	if err == nil {
		t.Fatal("Frame() err = nil, want StreamError")
	}
	if !asStreamError(err, &se) {
		t.Fatalf("Frame() err = %v (%T), want *StreamError", err, err)
	}
	if se.Code != http2.ErrCodeStreamClosed {
		t.Errorf("StreamError code = %v, want ErrCodeStreamClosed", se.Code)
	}
}

func asStreamError(err error, target **StreamError) bool {
	se, ok := err.(*StreamError)
	if ok {
		*target = se
	}
	return ok
}

func TestResetStreamClosesBothHalves(t *testing.T) {
	m, _, _ := NewMachine(nil)
	id := m.InitStream()
	if _, err := m.ResetStream(id); err != nil {
		t.Fatalf("ResetStream: %v", err)
	}
	if m.LocalState(id) != HalfClosed || m.RemoteState(id) != HalfClosed {
		t.Errorf("states after reset = %v/%v, want closed/closed", m.LocalState(id), m.RemoteState(id))
	}
}

func TestResetStreamUnknownIsBadState(t *testing.T) {
	m, _, _ := NewMachine(nil)
	_, err := m.ResetStream(42)
	if _, ok := err.(*BadState); !ok {
		t.Fatalf("ResetStream() err = %v (%T), want *BadState", err, err)
	}
}
