// Package h2body is the response body content-handler pipeline the
// engine treats as an external collaborator: it decides what happens
// to DATA payload bytes between the wire and the application.
package h2body

import "golang.org/x/net/http2/hpack"

// Handler decodes successive chunks of one stream's response body.
// Decode may transform, buffer, or reject a chunk; Close runs once the
// stream's remote half reaches end-of-stream.
type Handler interface {
	Decode(payload []byte) ([]byte, error)
	Close() error
}

// Factory builds a Handler once a stream's final response headers are
// known, so the pipeline can, for example, pick a decoder based on
// content-type or content-encoding.
type Factory func(status int, headers []hpack.HeaderField) (Handler, error)

type passthrough struct{}

func (passthrough) Decode(payload []byte) ([]byte, error) { return payload, nil }
func (passthrough) Close() error                          { return nil }

// PassThrough is the default content_handlers factory: it delivers DATA
// payload bytes to the application unmodified.
func PassThrough() Factory {
	return func(int, []hpack.HeaderField) (Handler, error) {
		return passthrough{}, nil
	}
}
