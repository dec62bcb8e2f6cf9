package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/lsp-server-go/internal/engine"
	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/internal/logctx"
)

// Handler is a single-connection stdio transport that reads framed JSON-RPC
// messages from an io.Reader and writes framed messages to an io.Writer. By
// default, it uses os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all protocol semantics to the
// provided engine.Engine.
type Handler struct {
	eng *engine.Engine

	r              io.Reader
	w              io.Writer
	l              *slog.Logger
	maxMessageSize int

	writeMu sync.Mutex
	bw      *bufio.Writer
}

// Option configures a Handler.
type Option func(*Handler)

// WithIO replaces os.Stdin and os.Stdout. A nil side keeps its default.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		if in != nil {
			h.r = in
		}
		if out != nil {
			h.w = out
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMaxMessageSize caps the Content-Length of incoming messages. Values
// below one keep DefaultMaxMessageSize.
func WithMaxMessageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:            eng,
		r:              os.Stdin,
		w:              os.Stdout,
		l:              slog.Default(),
		maxMessageSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.bw = bufio.NewWriter(h.w)
	return h
}

// WriteMessage frames and writes one message. Writes are serialised.
func (h *Handler) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return writeFrame(h.bw, msg)
}

func (h *Handler) writeResponse(ctx context.Context, resp *jsonrpc.Response) {
	msg, err := jsonrpc.Encode(resp)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.response.marshal_fail", slog.String("err", err.Error()))
		return
	}
	if err := h.WriteMessage(ctx, msg); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

// Serve runs the stdio event loop until the exit notification, EOF on the
// reader, or the context is canceled. It is safe to call at most once per
// Handler. Serve closes the engine when it returns.
//
// A clean EOF and exit both return nil; the process exit code is available
// from the engine's ExitCode.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{Transport: "stdio"})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.eng.Close()

	h.eng.Attach(h)
	h.l.InfoContext(ctx, "stdio.serve.start")

	runErr := make(chan error, 1)
	go func() { runErr <- h.eng.Run(ctx) }()

	readErr := make(chan error, 1)
	go func() { readErr <- h.readLoop(ctx) }()

	select {
	case <-h.eng.Done():
		cancel()
		<-runErr
		h.l.InfoContext(ctx, "stdio.serve.exit", slog.Int("code", h.eng.ExitCode()))
		return nil
	case err := <-readErr:
		cancel()
		<-runErr
		if errors.Is(err, io.EOF) {
			h.l.InfoContext(ctx, "stdio.serve.eof")
			return nil
		}
		h.l.ErrorContext(ctx, "stdio.serve.read_fail", slog.String("err", err.Error()))
		return err
	case <-ctx.Done():
		<-runErr
		return ctx.Err()
	}
}

func (h *Handler) readLoop(ctx context.Context) error {
	fr := newFrameReader(h.r, h.maxMessageSize)
	for {
		body, err := fr.read()
		if errors.Is(err, ErrUnsupportedContentType) {
			h.l.WarnContext(ctx, "stdio.message.content_type", slog.String("err", err.Error()))
			continue
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.route(ctx, body)
	}
}

func (h *Handler) route(ctx context.Context, body []byte) {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		code := jsonrpc.ErrorCodeParseError
		if errors.Is(err, jsonrpc.ErrInvalidVersion) || errors.Is(err, jsonrpc.ErrMalformedMessage) {
			code = jsonrpc.ErrorCodeInvalidRequest
		}
		h.l.WarnContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(msg.ID, code, err.Error(), nil))
		return
	}

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		h.eng.HandleClientResponse(ctx, msg.AsResponse())
	case jsonrpc.TypeNotification:
		h.eng.Submit(ctx, msg.AsRequest(), nil)
	default:
		h.eng.Submit(ctx, msg.AsRequest(), func(resp *jsonrpc.Response) { h.writeResponse(ctx, resp) })
	}
}
