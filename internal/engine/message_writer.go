package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/internal/outbound"
	"github.com/ggoodman/lsp-server-go/lsp"
)

// MessageWriter writes one framed message to the client. Transports provide
// it so the engine can send server-initiated requests and notifications.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}

// writerTransport adapts a MessageWriter to outbound.Transport.
type writerTransport struct {
	w MessageWriter
}

func (t writerTransport) SendRequest(ctx context.Context, req *jsonrpc.Request) error {
	return t.write(ctx, req)
}

func (t writerTransport) SendNotification(ctx context.Context, req *jsonrpc.Request) error {
	return t.write(ctx, req)
}

func (t writerTransport) write(ctx context.Context, req *jsonrpc.Request) error {
	msg, err := jsonrpc.Encode(req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Method, err)
	}
	return t.w.WriteMessage(ctx, msg)
}

// client exposes an outbound.Dispatcher to handlers as an lspservice.Client.
type client struct {
	d *outbound.Dispatcher
}

func (c client) Notify(ctx context.Context, method lsp.Method, params any) error {
	return c.d.Notify(ctx, string(method), params)
}

func (c client) Call(ctx context.Context, method lsp.Method, params any, result any) error {
	resp, err := c.d.Call(ctx, string(method), params)
	if err != nil {
		return err
	}
	if err := outbound.Result(resp); err != nil {
		return err
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
