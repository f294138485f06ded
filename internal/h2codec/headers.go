package h2codec

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HeaderCodec owns the one encoder and one decoder a connection needs
// for its whole lifetime: HPACK's dynamic table is stateful across
// frames, so both must outlive any single header block.
type HeaderCodec struct {
	enc    *hpack.Encoder
	encBuf *bytes.Buffer
	dec    *hpack.Decoder
}

// NewHeaderCodec builds a codec with the given initial dynamic table
// size for both directions.
func NewHeaderCodec(tableSize uint32) *HeaderCodec {
	buf := &bytes.Buffer{}
	enc := hpack.NewEncoder(buf)
	enc.SetMaxDynamicTableSize(tableSize)
	dec := hpack.NewDecoder(tableSize, nil)
	return &HeaderCodec{enc: enc, encBuf: buf, dec: dec}
}

// EncodeHeaderBlock HPACK-encodes fields into a single header block.
// The block is not yet split across HEADERS/CONTINUATION frames; that
// framing decision belongs to EncodeHeaders.
func (h *HeaderCodec) EncodeHeaderBlock(fields []hpack.HeaderField) ([]byte, error) {
	h.encBuf.Reset()
	for _, f := range fields {
		if err := h.enc.WriteField(f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, h.encBuf.Len())
	copy(out, h.encBuf.Bytes())
	return out, nil
}

// Decoder exposes the long-lived decoder so Parse can be handed the
// same instance on every call.
func (h *HeaderCodec) Decoder() *hpack.Decoder { return h.dec }

// SetEncoderMaxDynamicTableSize applies a peer-advertised
// SETTINGS_HEADER_TABLE_SIZE to the outbound encoder. The inbound
// decoder's table size is fixed at construction time from this
// client's own advertised SETTINGS_HEADER_TABLE_SIZE, which this engine
// never renegotiates mid-connection.
func (h *HeaderCodec) SetEncoderMaxDynamicTableSize(v uint32) { h.enc.SetMaxDynamicTableSize(v) }
