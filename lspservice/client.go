package lspservice

import (
	"context"

	"github.com/ggoodman/lsp-server-go/lsp"
)

// Client sends server-initiated messages to the connected client. The
// dispatcher places one in the context of every handler invocation once a
// transport is attached.
type Client interface {
	// Notify sends a notification such as textDocument/publishDiagnostics.
	Notify(ctx context.Context, method lsp.Method, params any) error
	// Call sends a request and decodes the result into result, which may be
	// nil to discard it.
	Call(ctx context.Context, method lsp.Method, params any, result any) error
}

type clientKey struct{}

// ContextWithClient returns a context carrying c.
func ContextWithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client of the connection serving ctx.
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok && c != nil
}
