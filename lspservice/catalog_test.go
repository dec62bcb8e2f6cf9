package lspservice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ggoodman/lsp-server-go/lsp"
)

type pingHandler interface {
	Ping(ctx context.Context, params *pingParams) (string, error)
}

type pingParams struct {
	Message string `json:"message"`
}

type pinger struct{}

func (pinger) Ping(ctx context.Context, params *pingParams) (string, error) {
	return "pong: " + params.Message, nil
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(
		NewRequestDescriptor(lsp.HoverMethod, HoverHandler.Hover),
		NewRequestDescriptor(lsp.HoverMethod, HoverHandler.Hover),
	)
	if !errors.Is(err, ErrDuplicateMethod) {
		t.Fatalf("expected ErrDuplicateMethod, got %v", err)
	}

	if _, err := DefaultCatalog().Extend(StandardDescriptors()[0]); !errors.Is(err, ErrDuplicateMethod) {
		t.Fatalf("expected extending with a standard method to fail, got %v", err)
	}
}

func TestDefaultCatalogModes(t *testing.T) {
	c := DefaultCatalog()
	cases := []struct {
		method lsp.Method
		kind   Kind
		mode   DispatchMode
	}{
		{lsp.InitializeMethod, KindRequest, Ordered},
		{lsp.ExitMethod, KindNotification, Ordered},
		{lsp.DidOpenMethod, KindNotification, Ordered},
		{lsp.DidChangeMethod, KindNotification, Ordered},
		{lsp.DidCloseMethod, KindNotification, Ordered},
		{lsp.DidSaveMethod, KindNotification, Ordered},
		{lsp.OnTypeFormattingMethod, KindRequest, Ordered},
		{lsp.HoverMethod, KindRequest, Concurrent},
		{lsp.CompletionMethod, KindRequest, Concurrent},
		{lsp.ReferencesMethod, KindRequest, Concurrent},
	}
	for _, tc := range cases {
		d, ok := c.Lookup(tc.method)
		if !ok {
			t.Fatalf("missing descriptor for %s", tc.method)
		}
		if d.Kind() != tc.kind || d.Mode() != tc.mode {
			t.Fatalf("%s: got %s/%s want %s/%s", tc.method, d.Kind(), d.Mode(), tc.kind, tc.mode)
		}
	}
	if d, _ := c.Lookup(lsp.DidOpenMethod); !d.HasRegistrationOptions() || d.ClientCapability() != "textDocument.synchronization" {
		t.Fatalf("unexpected didOpen metadata: %s", d)
	}
	if d, _ := c.Lookup(lsp.ShutdownMethod); d.HasRegistrationOptions() || d.ClientCapability() != "" {
		t.Fatalf("unexpected shutdown metadata: %s", d)
	}
}

func TestCustomDescriptor(t *testing.T) {
	c, err := DefaultCatalog().Extend(NewRequestDescriptor("custom/ping", pingHandler.Ping))
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	reg := NewRegistry(WithCatalog(c))
	regs := mustAdd(t, reg, pinger{})
	if len(regs) != 1 || regs[0].Method() != "custom/ping" {
		t.Fatalf("unexpected registrations: %v", regs)
	}

	params, err := regs[0].Descriptor().Decode(json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res, err := regs[0].Invoke(context.Background(), params)
	if err != nil || res != "pong: hi" {
		t.Fatalf("unexpected result %v, %v", res, err)
	}
}

func TestDescriptorDecode(t *testing.T) {
	d, _ := DefaultCatalog().Lookup(lsp.HoverMethod)

	p, err := d.Decode(json.RawMessage(`{"textDocument":{"uri":"file:///a.cs"},"position":{"line":1,"character":2}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hp, ok := p.(*lsp.HoverParams)
	if !ok || hp.TextDocumentURI() != "file:///a.cs" || hp.Position != (lsp.Position{Line: 1, Character: 2}) {
		t.Fatalf("unexpected params %#v", p)
	}

	for _, raw := range []string{``, `null`} {
		p, err := d.Decode(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if *p.(*lsp.HoverParams) != (lsp.HoverParams{}) {
			t.Fatalf("expected zero params for %q", raw)
		}
	}

	for _, raw := range []string{`{"position":{"line":-1,"character":0}}`, `[1]`, `{`} {
		if _, err := d.Decode(json.RawMessage(raw)); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("decode %q: expected ErrInvalidParams, got %v", raw, err)
		}
	}
	if _, err := d.Decode(json.RawMessage(`{"position":{"line":-1,"character":0}}`)); !errors.Is(err, lsp.ErrNegativePosition) {
		t.Fatalf("expected the codec error to stay visible, got %v", err)
	}
}

func TestInvokeRejectsMismatchedHandler(t *testing.T) {
	d, _ := DefaultCatalog().Lookup(lsp.HoverMethod)
	if _, err := d.invoke(context.Background(), pinger{}, &lsp.HoverParams{}); !errors.Is(err, ErrHandlerMismatch) {
		t.Fatalf("expected ErrHandlerMismatch, got %v", err)
	}
}
