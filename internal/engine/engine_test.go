package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice"
	"github.com/ggoodman/lsp-server-go/lspservice/lspservicetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, handlers []any, opts ...EngineOption) *Engine {
	t.Helper()
	reg := lspservice.NewRegistry(lspservice.WithLogger(discardLogger()))
	if len(handlers) > 0 {
		if _, err := reg.Add(handlers...); err != nil {
			t.Fatalf("add handlers: %v", err)
		}
	}
	e := New(reg, append([]EngineOption{WithLogger(discardLogger())}, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func request(t *testing.T, id int, method lsp.Method, params any) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(id), string(method), params)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func notification(t *testing.T, method lsp.Method, params any) *jsonrpc.Request {
	t.Helper()
	note, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		t.Fatalf("new notification: %v", err)
	}
	return note
}

func initialize(t *testing.T, e *Engine, caps lsp.ClientCapabilities) *lsp.InitializeResult {
	t.Helper()
	resp := e.HandleRequest(context.Background(), request(t, 1, lsp.InitializeMethod, lsp.InitializeParams{Capabilities: caps}))
	if resp.Error != nil {
		t.Fatalf("initialize: %v", resp.Error)
	}
	var res lsp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode initialize result: %v", err)
	}
	e.HandleNotification(context.Background(), notification(t, lsp.InitializedMethod, struct{}{}))
	return &res
}

func openDoc(t *testing.T, e *Engine, uri lsp.DocumentURI, languageID, text string) {
	t.Helper()
	e.HandleNotification(context.Background(), notification(t, lsp.DidOpenMethod, lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	}))
}

func hoverParams(uri lsp.DocumentURI) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 0, "character": 0},
	}
}

func wantErrorCode(t *testing.T, resp *jsonrpc.Response, code jsonrpc.ErrorCode) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error %d, got result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("expected error code %d, got %d (%s)", code, resp.Error.Code, resp.Error.Message)
	}
}

func TestRequestBeforeInitialize(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.Hover{Name: "hover", Recorder: rec},
		&lspservicetest.TextDocumentSync{Name: "sync", Recorder: rec},
	})

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, hoverParams("file:///a.go")))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeServerNotInitialized)

	openDoc(t, e, "file:///a.go", "go", "package a")
	if calls := rec.Calls(); len(calls) != 0 {
		t.Fatalf("expected no handler calls before initialize, got %v", calls)
	}
}

func TestInitializeAdvertisesCapabilities(t *testing.T) {
	e := newTestEngine(t, []any{
		&lspservicetest.Hover{Name: "hover"},
		&lspservicetest.TextDocumentSync{Name: "sync", SyncKind: lsp.TextDocumentSyncKindIncremental},
	}, WithServerInfo("words", "1.0.0"))

	res := initialize(t, e, lsp.ClientCapabilities{})
	if !lsp.BoolValue(res.Capabilities.HoverProvider) {
		t.Fatalf("expected hoverProvider, got %+v", res.Capabilities)
	}
	if res.Capabilities.TextDocumentSync == nil || res.Capabilities.TextDocumentSync.Change == nil || *res.Capabilities.TextDocumentSync.Change != lsp.TextDocumentSyncKindIncremental {
		t.Fatalf("expected incremental sync, got %+v", res.Capabilities.TextDocumentSync)
	}
	if res.ServerInfo == nil || res.ServerInfo.Name != "words" {
		t.Fatalf("expected default server info, got %+v", res.ServerInfo)
	}
}

func TestInitializeHandlerResultWins(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.Lifecycle{Name: "custom", Recorder: rec},
		&lspservicetest.Hover{Name: "hover"},
	}, WithServerInfo("words", "1.0.0"))

	res := initialize(t, e, lsp.ClientCapabilities{})
	if res.ServerInfo == nil || res.ServerInfo.Name != "custom" {
		t.Fatalf("expected handler server info, got %+v", res.ServerInfo)
	}
	if !lsp.BoolValue(res.Capabilities.HoverProvider) {
		t.Fatalf("expected hoverProvider filled in from the registry")
	}
	got := rec.Methods()
	if len(got) != 2 || got[0] != lsp.InitializeMethod || got[1] != lsp.InitializedMethod {
		t.Fatalf("unexpected lifecycle calls %v", got)
	}
}

func TestSecondInitializeRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	initialize(t, e, lsp.ClientCapabilities{})

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.InitializeMethod, lsp.InitializeParams{}))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeInvalidRequest)
}

func TestRequestGoesToFirstMatchingHandler(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.TextDocumentSync{Name: "sync"},
		&lspservicetest.Hover{Name: "go", Selector: lsp.ForLanguage("go"), Recorder: rec},
		&lspservicetest.Hover{Name: "any", Recorder: rec},
	})
	initialize(t, e, lsp.ClientCapabilities{})
	openDoc(t, e, "file:///a.go", "go", "package a")
	openDoc(t, e, "file:///a.txt", "plaintext", "hello")

	for _, uri := range []lsp.DocumentURI{"file:///a.go", "file:///a.txt"} {
		if resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, hoverParams(uri))); resp.Error != nil {
			t.Fatalf("hover %s: %v", uri, resp.Error)
		}
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected one call per request, got %d", len(calls))
	}
	if calls[0].Handler != "go" || calls[1].Handler != "any" {
		t.Fatalf("unexpected handlers %q, %q", calls[0].Handler, calls[1].Handler)
	}
}

func TestRequestWithoutMatchingHandlerIsNull(t *testing.T) {
	e := newTestEngine(t, []any{
		&lspservicetest.TextDocumentSync{Name: "sync"},
		&lspservicetest.Hover{Name: "go", Selector: lsp.ForLanguage("go")},
	})
	initialize(t, e, lsp.ClientCapabilities{})
	openDoc(t, e, "file:///a.txt", "plaintext", "hello")

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, hoverParams("file:///a.txt")))
	if resp.Error != nil {
		t.Fatalf("unexpected error %v", resp.Error)
	}
	if string(resp.Result) != "null" {
		t.Fatalf("expected null result, got %s", resp.Result)
	}
}

func TestNotificationFansOut(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.TextDocumentSync{Name: "go", Selector: lsp.ForLanguage("go"), Recorder: rec},
		&lspservicetest.TextDocumentSync{Name: "all", Recorder: rec},
	})
	initialize(t, e, lsp.ClientCapabilities{})

	openDoc(t, e, "file:///a.go", "go", "package a")
	openDoc(t, e, "file:///a.txt", "plaintext", "hello")

	var handlers []string
	for _, c := range rec.Calls() {
		handlers = append(handlers, c.Handler)
	}
	if got := strings.Join(handlers, ","); got != "go,all,all" {
		t.Fatalf("unexpected didOpen fan-out %q", got)
	}
}

func TestDocumentStoreFollowsSync(t *testing.T) {
	e := newTestEngine(t, []any{&lspservicetest.TextDocumentSync{Name: "sync"}})
	initialize(t, e, lsp.ClientCapabilities{})
	ctx := context.Background()

	openDoc(t, e, "file:///a.txt", "plaintext", "hello world")
	e.HandleNotification(ctx, notification(t, lsp.DidChangeMethod, lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///a.txt"}, Version: 2},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{
			Range: &lsp.Range{Start: lsp.Position{Line: 0, Character: 6}, End: lsp.Position{Line: 0, Character: 11}},
			Text:  "there",
		}},
	}))

	doc, err := e.Documents().Get(ctx, "file:///a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc == nil || doc.Text != "hello there" || doc.Version != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}

	e.HandleNotification(ctx, notification(t, lsp.DidCloseMethod, lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.txt"},
	}))
	if doc, _ := e.Documents().Get(ctx, "file:///a.txt"); doc != nil {
		t.Fatalf("expected document to be closed, got %+v", doc)
	}
}

func TestLanguageScopedDidClose(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{&lspservicetest.TextDocumentSync{Name: "go", Selector: lsp.ForLanguage("go"), Recorder: rec}})
	initialize(t, e, lsp.ClientCapabilities{})
	ctx := context.Background()

	openDoc(t, e, "file:///a.go", "go", "package a")
	e.HandleNotification(ctx, notification(t, lsp.DidCloseMethod, lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.go"},
	}))

	methods := rec.Methods()
	if len(methods) != 2 || methods[1] != lsp.DidCloseMethod {
		t.Fatalf("expected didOpen then didClose, got %v", methods)
	}
	if doc, _ := e.Documents().Get(ctx, "file:///a.go"); doc != nil {
		t.Fatalf("expected document to be closed after handlers ran, got %+v", doc)
	}
}

func TestFullSyncHandlerGetsFullText(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.TextDocumentSync{Name: "full", Selector: lsp.ForPattern("**/*.txt"), SyncKind: lsp.TextDocumentSyncKindFull, Recorder: rec},
		&lspservicetest.TextDocumentSync{Name: "inc", Selector: lsp.ForPattern("**/*.txt", "**/*.md"), SyncKind: lsp.TextDocumentSyncKindIncremental, Recorder: rec},
	})
	res := initialize(t, e, lsp.ClientCapabilities{})
	if res.Capabilities.TextDocumentSync == nil || res.Capabilities.TextDocumentSync.Change == nil || *res.Capabilities.TextDocumentSync.Change != lsp.TextDocumentSyncKindIncremental {
		t.Fatalf("expected incremental sync to be advertised, got %+v", res.Capabilities.TextDocumentSync)
	}

	openDoc(t, e, "file:///a.txt", "plaintext", "hello world")
	edit := lsp.TextDocumentContentChangeEvent{
		Range: &lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 5}},
		Text:  "HELLO",
	}
	e.HandleNotification(context.Background(), notification(t, lsp.DidChangeMethod, lsp.DidChangeTextDocumentParams{
		TextDocument:   lsp.VersionedTextDocumentIdentifier{TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///a.txt"}, Version: 2},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{edit},
	}))

	got := make(map[string][]lsp.TextDocumentContentChangeEvent)
	for _, c := range rec.Calls() {
		if c.Method == lsp.DidChangeMethod {
			got[c.Handler] = c.Params.(*lsp.DidChangeTextDocumentParams).ContentChanges
		}
	}
	if full := got["full"]; len(full) != 1 || full[0].Range != nil || full[0].Text != "HELLO world" {
		t.Fatalf("expected one full-text change, got %+v", full)
	}
	if inc := got["inc"]; len(inc) != 1 || inc[0].Range == nil || inc[0].Text != "HELLO" {
		t.Fatalf("expected the range edit unchanged, got %+v", inc)
	}
}

func TestInvalidParams(t *testing.T) {
	for _, validate := range []bool{false, true} {
		e := newTestEngine(t, []any{&lspservicetest.Hover{Name: "hover"}}, WithParamsValidation(validate))
		initialize(t, e, lsp.ClientCapabilities{})

		resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, map[string]any{"textDocument": "nope"}))
		wantErrorCode(t, resp, jsonrpc.ErrorCodeInvalidParams)
	}
}

func TestMethodNotFound(t *testing.T) {
	e := newTestEngine(t, nil)
	initialize(t, e, lsp.ClientCapabilities{})

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.DefinitionMethod, hoverParams("file:///a.go")))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeMethodNotFound)
}

func TestHandlerErrorIsInternal(t *testing.T) {
	e := newTestEngine(t, []any{&lspservicetest.Hover{Name: "hover", Err: io.ErrUnexpectedEOF}})
	initialize(t, e, lsp.ClientCapabilities{})

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, hoverParams("file:///a.go")))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeInternalError)
}

func TestHandlerRPCErrorPassesThrough(t *testing.T) {
	e := newTestEngine(t, []any{&lspservicetest.Hover{Name: "hover", Err: jsonrpc.NewError(jsonrpc.ErrorCodeContentModified, "stale")}})
	initialize(t, e, lsp.ClientCapabilities{})

	resp := e.HandleRequest(context.Background(), request(t, 2, lsp.HoverMethod, hoverParams("file:///a.go")))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeContentModified)
}

func TestRawMethodHandler(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.Registry().AddMethod("custom/echo", lspservice.RequestHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		return params, nil
	})); err != nil {
		t.Fatalf("add method: %v", err)
	}
	initialize(t, e, lsp.ClientCapabilities{})

	resp := e.HandleRequest(context.Background(), request(t, 2, "custom/echo", map[string]int{"n": 1}))
	if resp.Error != nil {
		t.Fatalf("unexpected error %v", resp.Error)
	}
	if string(resp.Result) != `{"n":1}` {
		t.Fatalf("unexpected result %s", resp.Result)
	}
}

func TestCancelRequest(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e := newTestEngine(t, []any{&lspservicetest.Hover{Name: "hover", Block: block}})
	initialize(t, e, lsp.ClientCapabilities{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	replies := make(chan *jsonrpc.Response, 2)
	reply := func(r *jsonrpc.Response) { replies <- r }

	e.Submit(ctx, request(t, 7, lsp.HoverMethod, hoverParams("file:///a.go")), reply)
	e.Submit(ctx, request(t, 7, lsp.HoverMethod, hoverParams("file:///a.go")), reply)

	select {
	case resp := <-replies:
		wantErrorCode(t, resp, jsonrpc.ErrorCodeInvalidRequest)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for duplicate id rejection")
	}

	e.Submit(ctx, notification(t, lsp.CancelRequestMethod, map[string]any{"id": 7}), nil)

	select {
	case resp := <-replies:
		wantErrorCode(t, resp, jsonrpc.ErrorCodeRequestCancelled)
		if resp.ID.String() != "7" {
			t.Fatalf("unexpected response id %s", resp.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancellation")
	}
}

func TestShutdownThenExit(t *testing.T) {
	rec := &lspservicetest.Recorder{}
	e := newTestEngine(t, []any{
		&lspservicetest.Lifecycle{Name: "life", Recorder: rec},
		&lspservicetest.Hover{Name: "hover"},
	})
	initialize(t, e, lsp.ClientCapabilities{})
	ctx := context.Background()

	resp := e.HandleRequest(ctx, request(t, 2, lsp.ShutdownMethod, nil))
	if resp.Error != nil || string(resp.Result) != "null" {
		t.Fatalf("unexpected shutdown response %+v", resp)
	}

	resp = e.HandleRequest(ctx, request(t, 3, lsp.HoverMethod, hoverParams("file:///a.go")))
	wantErrorCode(t, resp, jsonrpc.ErrorCodeInvalidRequest)

	e.HandleNotification(ctx, notification(t, lsp.ExitMethod, nil))
	select {
	case <-e.Done():
	default:
		t.Fatalf("expected engine to be done after exit")
	}
	if code := e.ExitCode(); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	methods := rec.Methods()
	if methods[len(methods)-2] != lsp.ShutdownMethod || methods[len(methods)-1] != lsp.ExitMethod {
		t.Fatalf("unexpected lifecycle calls %v", methods)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	e := newTestEngine(t, nil)
	initialize(t, e, lsp.ClientCapabilities{})

	e.HandleNotification(context.Background(), notification(t, lsp.ExitMethod, nil))
	<-e.Done()
	if code := e.ExitCode(); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestClientInContext(t *testing.T) {
	e := newTestEngine(t, nil)
	e.Attach(MessageWriterFunc(func(ctx context.Context, msg jsonrpc.Message) error { return nil }))

	var gotClient bool
	if _, err := e.Registry().AddMethod("custom/probe", lspservice.NotificationHandlerFunc(func(ctx context.Context, _ json.RawMessage) error {
		_, gotClient = lspservice.ClientFromContext(ctx)
		return nil
	})); err != nil {
		t.Fatalf("add method: %v", err)
	}
	initialize(t, e, lsp.ClientCapabilities{})

	e.HandleNotification(context.Background(), notification(t, "custom/probe", nil))
	if !gotClient {
		t.Fatalf("expected a client in the handler context")
	}
}

// fakeClient captures server-initiated requests written by the engine.
type fakeClient struct {
	requests chan *jsonrpc.Request
}

func (f *fakeClient) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	var req jsonrpc.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return err
	}
	f.requests <- &req
	return nil
}

func TestDynamicRegistration(t *testing.T) {
	fc := &fakeClient{requests: make(chan *jsonrpc.Request, 4)}
	e := newTestEngine(t, []any{&lspservicetest.Hover{Name: "hover", Selector: lsp.ForLanguage("go")}})
	e.Attach(fc)

	res := initialize(t, e, lsp.ClientCapabilities{
		TextDocument: &lsp.TextDocumentClientCapabilities{
			Hover: &lsp.HoverCapabilities{DynamicRegistration: lsp.Bool(true)},
		},
	})
	if res.Capabilities.HoverProvider != nil {
		t.Fatalf("dynamically registered hover must not be advertised statically")
	}

	var req *jsonrpc.Request
	select {
	case req = <-fc.requests:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client/registerCapability")
	}
	if req.Method != string(lsp.RegisterCapabilityMethod) {
		t.Fatalf("unexpected method %s", req.Method)
	}
	var params lsp.RegistrationParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if len(params.Registrations) != 1 || params.Registrations[0].Method != lsp.HoverMethod {
		t.Fatalf("unexpected registrations %+v", params.Registrations)
	}

	ok, err := jsonrpc.NewResultResponse(req.ID, nil)
	if err != nil {
		t.Fatalf("new response: %v", err)
	}
	e.HandleClientResponse(context.Background(), ok)

	// Removing the handler unregisters it.
	if n := e.Registry().RemoveMethod(lsp.HoverMethod, lsp.ForLanguage("go")); n != 1 {
		t.Fatalf("expected one removal, got %d", n)
	}
	select {
	case req = <-fc.requests:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client/unregisterCapability")
	}
	if req.Method != string(lsp.UnregisterCapabilityMethod) {
		t.Fatalf("unexpected method %s", req.Method)
	}
	var unreg lsp.UnregistrationParams
	if err := json.Unmarshal(req.Params, &unreg); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if len(unreg.Unregisterations) != 1 || unreg.Unregisterations[0].ID != params.Registrations[0].ID {
		t.Fatalf("unexpected unregistrations %+v", unreg.Unregisterations)
	}
	ok, _ = jsonrpc.NewResultResponse(req.ID, nil)
	e.HandleClientResponse(context.Background(), ok)
}
