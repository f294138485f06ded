package h2body

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/net/http2/hpack"
)

func TestPassThroughDecodePassesPayloadUnmodified(t *testing.T) {
	factory := PassThrough()
	handler, err := factory(200, []hpack.HeaderField{{Name: "content-type", Value: "text/plain"}})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	in := []byte("hello")
	out, err := handler.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("Decode() = %q, want %q", out, in)
	}
	if err := handler.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

// recordingHandler proves Factory/Handler can be implemented by a
// caller to transform chunk length, exactly as §9's content-handler
// collaborator contract allows (e.g. decompression).
type recordingHandler struct {
	chunks int
	closed bool
}

func (h *recordingHandler) Decode(payload []byte) ([]byte, error) {
	h.chunks++
	doubled := make([]byte, 0, len(payload)*2)
	doubled = append(doubled, payload...)
	doubled = append(doubled, payload...)
	return doubled, nil
}

func (h *recordingHandler) Close() error {
	h.closed = true
	return nil
}

func TestFactoryCanBuildACustomHandler(t *testing.T) {
	rh := &recordingHandler{}
	factory := Factory(func(status int, headers []hpack.HeaderField) (Handler, error) {
		if status != 200 {
			return nil, errors.New("unexpected status")
		}
		return rh, nil
	})

	handler, err := factory(200, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	out, err := handler.Decode([]byte("ab"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "abab" {
		t.Errorf("Decode() = %q, want %q", out, "abab")
	}
	if rh.chunks != 1 {
		t.Errorf("chunks = %d, want 1", rh.chunks)
	}

	if err := handler.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !rh.closed {
		t.Error("Close() did not mark handler closed")
	}
}

func TestFactoryErrorPropagates(t *testing.T) {
	factory := Factory(func(status int, headers []hpack.HeaderField) (Handler, error) {
		return nil, errors.New("boom")
	})

	if _, err := factory(500, nil); err == nil {
		t.Fatal("factory() err = nil, want error")
	}
}
