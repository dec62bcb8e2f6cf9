package engine

import (
	"context"
	"log/slog"

	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice"
)

func newNotification(method lsp.Method, params any) (*jsonrpc.Request, error) {
	return jsonrpc.NewNotification(string(method), params)
}

// syncDynamicRegistrations keeps the client's dynamic registrations equal to
// the registry's, for the capabilities the client registers dynamically. It
// returns when ctx ends or the registry is closed.
func (e *Engine) syncDynamicRegistrations(ctx context.Context, c lspservice.Client, caps *lsp.ClientCapabilities) {
	changes := e.reg.Subscriber()
	live := make(map[string]*lspservice.Registration)

	for {
		e.reconcileRegistrations(ctx, c, caps, live)

		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
	}
}

func (e *Engine) reconcileRegistrations(ctx context.Context, c lspservice.Client, caps *lsp.ClientCapabilities, live map[string]*lspservice.Registration) {
	want := make(map[string]*lspservice.Registration)
	var added []*lspservice.Registration
	for _, reg := range e.reg.DynamicRegistrations(caps) {
		want[reg.ID()] = reg
		if _, ok := live[reg.ID()]; !ok {
			added = append(added, reg)
		}
	}
	var removed []*lspservice.Registration
	for id, reg := range live {
		if _, ok := want[id]; !ok {
			removed = append(removed, reg)
		}
	}

	if len(removed) > 0 {
		if err := c.Call(ctx, lsp.UnregisterCapabilityMethod, lspservice.UnregistrationParams(removed), nil); err != nil {
			e.log.WarnContext(ctx, "engine.dynamic.unregister_fail", slog.Int("count", len(removed)), slog.String("err", err.Error()))
		} else {
			for _, reg := range removed {
				delete(live, reg.ID())
			}
			e.log.InfoContext(ctx, "engine.dynamic.unregistered", slog.Int("count", len(removed)))
		}
	}

	if len(added) > 0 {
		if err := c.Call(ctx, lsp.RegisterCapabilityMethod, lspservice.RegistrationParams(added), nil); err != nil {
			e.log.WarnContext(ctx, "engine.dynamic.register_fail", slog.Int("count", len(added)), slog.String("err", err.Error()))
		} else {
			for _, reg := range added {
				live[reg.ID()] = reg
			}
			e.log.InfoContext(ctx, "engine.dynamic.registered", slog.Int("count", len(added)))
		}
	}
}
