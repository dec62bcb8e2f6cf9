// Package logctx carries per-message attributes through a context so that
// every log record emitted while serving a message is annotated with them.
package logctx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Handler decorates records with the conn, rpc and doc groups found in the
// record's context.
type Handler struct {
	slog.Handler
}

// NewLogger wraps h so records pick up context attributes.
func NewLogger(h slog.Handler) *slog.Logger {
	return slog.New(Handler{Handler: h})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(contextAttrs(ctx)...)
	}
	return h.Handler.Handle(ctx, r)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if cd, ok := ctx.Value(connKey{}).(*ConnData); ok {
		conn := []any{slog.String("transport", cd.Transport)}
		if name := cd.ClientName(); name != "" {
			conn = append(conn, slog.String("client", name))
		}
		attrs = append(attrs, slog.Group("conn", conn...))
	}
	if m, ok := ctx.Value(rpcKey{}).(*RPCMessage); ok {
		rpc := []any{slog.String("method", m.Method), slog.String("type", m.Type)}
		if m.ID != "" {
			rpc = append(rpc, slog.String("id", m.ID))
		}
		attrs = append(attrs, slog.Group("rpc", rpc...))
	}
	if d, ok := ctx.Value(docKey{}).(*DocumentData); ok {
		attrs = append(attrs, slog.Group("doc",
			slog.String("uri", d.URI),
			slog.String("language", d.LanguageID),
		))
	}
	return attrs
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type (
	connKey struct{}
	rpcKey  struct{}
	docKey  struct{}
)

// ConnData describes the connection a message arrived on. The client name
// is learned from initialize, after the connection is already serving.
type ConnData struct {
	Transport string

	clientName atomic.Pointer[string]
}

// ClientName returns the name sent in initialize, if any.
func (c *ConnData) ClientName() string {
	if p := c.clientName.Load(); p != nil {
		return *p
	}
	return ""
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connKey{}, data)
}

// SetClientName records the client's name on the connection serving ctx.
func SetClientName(ctx context.Context, name string) {
	if cd, ok := ctx.Value(connKey{}).(*ConnData); ok {
		cd.clientName.Store(&name)
	}
}

// RPCMessage identifies the message being served. ID is empty for
// notifications.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcKey{}, msg)
}

// DocumentData identifies the document a message targets.
type DocumentData struct {
	URI        string
	LanguageID string
}

func WithDocumentData(ctx context.Context, data *DocumentData) context.Context {
	return context.WithValue(ctx, docKey{}, data)
}
