package h2engine

import (
	"time"

	"github.com/perbu/h2engine/internal/h2body"
	"github.com/perbu/h2engine/internal/h2proto"
)

// Options is the validated configuration an Engine runs with.
type Options struct {
	ContentHandlers h2body.Factory
	// Keepalive is the interval between PING keepalives; zero disables
	// keepalive entirely.
	Keepalive time.Duration
}

// ParseOptions validates a raw options map the way the coordinator
// receives it from its caller, rejecting any key this engine doesn't
// recognize. A nil or missing content_handlers defaults to a single
// pass-through data handler; a missing keepalive defaults to disabled.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := Options{ContentHandlers: h2body.PassThrough()}

	for key, val := range raw {
		switch key {
		case "content_handlers":
			if val == nil {
				continue
			}
			factory, ok := val.(h2body.Factory)
			if !ok {
				return Options{}, &h2proto.OptionError{Option: "http2", Key: key}
			}
			if factory != nil {
				opts.ContentHandlers = factory
			}

		case "keepalive":
			d, err := parseKeepalive(val)
			if err != nil {
				return Options{}, err
			}
			opts.Keepalive = d

		default:
			return Options{}, &h2proto.OptionError{Option: "http2", Key: key}
		}
	}

	return opts, nil
}

func parseKeepalive(val any) (time.Duration, error) {
	switch v := val.(type) {
	case string:
		if v == "infinity" {
			return 0, nil
		}
	case time.Duration:
		if v > 0 {
			return v, nil
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, nil
		}
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, nil
		}
	}
	return 0, &h2proto.OptionError{Option: "http2", Key: "keepalive"}
}
