package h2codec

import (
	"strings"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

func TestParseIncompleteBuffer(t *testing.T) {
	dec := hpack.NewDecoder(4096, nil)

	for _, buf := range [][]byte{nil, {0x00}, {0x00, 0x00, 0x05, 0x00}} {
		v := Parse(buf, 16384, dec)
		if v.Kind != VerdictMore {
			t.Fatalf("Parse(%v) = %v, want VerdictMore", buf, v.Kind)
		}
	}
}

func TestParseSettingsRoundTrip(t *testing.T) {
	wire, err := EncodeSettings(http2.Setting{ID: http2.SettingInitialWindowSize, Val: 65535})
	if err != nil {
		t.Fatalf("EncodeSettings: %v", err)
	}

	dec := hpack.NewDecoder(4096, nil)
	v := Parse(wire, 16384, dec)
	if v.Kind != VerdictFrame {
		t.Fatalf("Parse() kind = %v, want VerdictFrame", v.Kind)
	}

	sf, ok := v.Frame.(*http2.SettingsFrame)
	if !ok {
		t.Fatalf("Parse() frame type = %T, want *http2.SettingsFrame", v.Frame)
	}
	val, ok := sf.Value(http2.SettingInitialWindowSize)
	if !ok || val != 65535 {
		t.Errorf("SettingInitialWindowSize = %d, %v, want 65535, true", val, ok)
	}
}

func TestParsePriorityIsIgnored(t *testing.T) {
	var out []byte
	wire, err := buildFrame(func(fr *http2.Framer) error {
		return fr.WritePriority(1, http2.PriorityParam{StreamDep: 0, Weight: 15})
	})
	if err != nil {
		t.Fatalf("build PRIORITY frame: %v", err)
	}
	out = wire

	dec := hpack.NewDecoder(4096, nil)
	v := Parse(out, 16384, dec)
	if v.Kind != VerdictIgnore {
		t.Fatalf("Parse() kind = %v, want VerdictIgnore", v.Kind)
	}
}

func TestParseOversizeFrameIsConnectionError(t *testing.T) {
	wire, err := EncodeData(1, make([]byte, 100), true)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}

	dec := hpack.NewDecoder(4096, nil)
	v := Parse(wire, 16, dec)
	if v.Kind != VerdictConnectionError {
		t.Fatalf("Parse() kind = %v, want VerdictConnectionError", v.Kind)
	}
	if v.Reason != http2.ErrCodeFrameSize {
		t.Errorf("Parse() reason = %v, want ErrCodeFrameSize", v.Reason)
	}
}

func TestEncodeDecodeData(t *testing.T) {
	payload := []byte("hello, stream")
	wire, err := EncodeData(3, payload, true)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}

	dec := hpack.NewDecoder(4096, nil)
	v := Parse(wire, 16384, dec)
	if v.Kind != VerdictFrame {
		t.Fatalf("Parse() kind = %v, want VerdictFrame", v.Kind)
	}
	df, ok := v.Frame.(*http2.DataFrame)
	if !ok {
		t.Fatalf("Parse() frame type = %T, want *http2.DataFrame", v.Frame)
	}
	if string(df.Data()) != string(payload) {
		t.Errorf("DataFrame payload = %q, want %q", df.Data(), payload)
	}
	if !df.StreamEnded() {
		t.Error("DataFrame StreamEnded() = false, want true")
	}
}

func TestHeaderCodecRoundTripAndContinuation(t *testing.T) {
	hc := NewHeaderCodec(4096)

	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
		{Name: "x-big", Value: strings.Repeat("x", 100)},
	}
	block, err := hc.EncodeHeaderBlock(fields)
	if err != nil {
		t.Fatalf("EncodeHeaderBlock: %v", err)
	}

	// Force a tiny max frame size so the block must split across a
	// CONTINUATION frame.
	wire, err := EncodeHeaders(1, 32, block, true)
	if err != nil {
		t.Fatalf("EncodeHeaders: %v", err)
	}

	var decoded []hpack.HeaderField
	hc.Decoder().SetEmitFunc(func(f hpack.HeaderField) { decoded = append(decoded, f) })

	v := Parse(wire, 16384, hc.Decoder())
	if v.Kind != VerdictFrame {
		t.Fatalf("Parse() kind = %v, want VerdictFrame", v.Kind)
	}
	mhf, ok := v.Frame.(*http2.MetaHeadersFrame)
	if !ok {
		t.Fatalf("Parse() frame type = %T, want *http2.MetaHeadersFrame", v.Frame)
	}
	if len(mhf.Fields) != len(fields) {
		t.Fatalf("decoded %d fields, want %d", len(mhf.Fields), len(fields))
	}
	if mhf.Fields[0].Value != "GET" {
		t.Errorf(":method = %q, want GET", mhf.Fields[0].Value)
	}
}
