// h2demo is a thin coordinator around internal/h2engine: it dials one
// HTTP/2 connection, issues a single GET, prints the response as it
// arrives, and exits once the stream is done or the connection fails.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/http2/hpack"

	"github.com/perbu/h2engine/internal/h2engine"
	"github.com/perbu/h2engine/internal/logging"
	"github.com/perbu/h2engine/internal/netutil"
)

var (
	addr      = flag.String("addr", "www.example.com:443", "host:port to connect to")
	path      = flag.String("path", "/", "request path")
	insecure  = flag.Bool("insecure", false, "skip TLS certificate verification")
	verbose   = flag.Bool("v", false, "verbose logging")
	dialTime  = flag.Duration("dial-timeout", 5*time.Second, "TCP dial timeout")
	keepalive = flag.Duration("keepalive", 0, "PING interval; 0 disables")
)

const exitOK, exitError = 0, 1

func main() {
	flag.Parse()
	logging.SetVerbose(*verbose)
	os.Exit(run())
}

func run() int {
	logger := logging.NewLogger("h2demo")

	host, portStr, err := netutil.ParseAddress(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "h2demo: %v\n", err)
		return exitError
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 443
	}

	cfg := &tls.Config{ServerName: host, InsecureSkipVerify: *insecure}
	transport, err := h2engine.NewTLSTransport(*addr, *dialTime, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "h2demo: dial %s: %v\n", *addr, err)
		return exitError
	}

	rawOpts := map[string]any{}
	if *keepalive > 0 {
		rawOpts["keepalive"] = *keepalive
	}

	done := make(chan struct{})
	reply := &printingReplyTarget{host: host, done: done}

	engine, err := h2engine.NewEngine(transport, nil, rawOpts, &loggingEventHandler{logger: logger}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "h2demo: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx) }()

	engine.Headers("req-1", reply, "GET", host, port, *path, []hpack.HeaderField{
		{Name: "user-agent", Value: "h2demo/1.0"},
	})
	engine.Data("req-1", reply, true, nil)

	select {
	case <-done:
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "h2demo: connection failed: %v\n", err)
			return exitError
		}
	case <-ctx.Done():
	}

	engine.Close()
	<-runErr
	return exitOK
}

// printingReplyTarget prints the single demo request's response as it
// streams in and signals done on the terminal message.
type printingReplyTarget struct {
	host   string
	status int
	done   chan struct{}
}

func (p *printingReplyTarget) Deliver(msg h2engine.Message) {
	switch msg.Kind {
	case h2engine.MsgResponse:
		p.status = msg.Status
		fmt.Printf("HTTP/2 %d\n", msg.Status)
		for _, h := range msg.Headers {
			fmt.Printf("%s: %s\n", h.Name, h.Value)
		}
		fmt.Println()
		if msg.Fin {
			close(p.done)
		}
	case h2engine.MsgData:
		os.Stdout.Write(msg.Payload)
		if msg.Fin {
			close(p.done)
		}
	case h2engine.MsgTrailers:
		close(p.done)
	case h2engine.MsgError:
		fmt.Fprintf(os.Stderr, "h2demo: stream %v: %v\n", msg.Ref, msg.Cause)
		close(p.done)
	}
}

// loggingEventHandler records connection and stream lifecycle events at
// debug level; a real coordinator would wire this into its own metrics.
type loggingEventHandler struct {
	h2engine.NoopEventHandler
	logger *logging.Logger
}

func (h *loggingEventHandler) ConnectStart(h2engine.ConnEvent) {
	h.logger.Debug("connect start")
}

func (h *loggingEventHandler) Disconnect(ev h2engine.ConnEvent) {
	h.logger.Debug("disconnect: %v", ev.Cause)
}

func (h *loggingEventHandler) Terminate(ev h2engine.ConnEvent) {
	h.logger.Debug("terminate: %v", ev.Cause)
}

func (h *loggingEventHandler) RequestStart(ev h2engine.StreamEvent) {
	h.logger.Debug("request start ref=%v %s %s%s", ev.Ref, ev.Method, ev.Authority, ev.Path)
}

func (h *loggingEventHandler) ResponseHeaders(ev h2engine.StreamEvent) {
	h.logger.Debug("response headers ref=%v status=%d", ev.Ref, ev.Status)
}
