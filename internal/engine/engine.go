// Package engine dispatches decoded JSON-RPC messages to the handlers held by
// an lspservice.Registry. It owns the protocol lifecycle (initialize through
// exit), request cancellation, scheduling of Ordered and Concurrent methods,
// the open-document store and dynamic capability registration. It does no
// framing; transports such as package stdio feed it messages.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/documents/memory"
	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/internal/logctx"
	"github.com/ggoodman/lsp-server-go/internal/outbound"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ggoodman/lsp-server-go/internal/engine"

var (
	// ErrRequestCancelled is the cancellation cause of requests cancelled by
	// the client.
	ErrRequestCancelled = errors.New("request cancelled")
	// ErrDuplicateRequestID is returned when a request reuses the id of one
	// still in flight.
	ErrDuplicateRequestID = errors.New("duplicate request id")

	errMethodNotFound = errors.New("method not found")
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateInitializing
	stateInitialized
	stateShutdown
	stateExited
)

// Engine is the dispatcher of one client connection.
type Engine struct {
	reg        *lspservice.Registry
	docs       documents.Store
	validator  *lspservice.ParamsValidator
	log        *slog.Logger
	tracer     trace.Tracer
	sched      *scheduler
	serverInfo *lsp.ServerInfo

	watchFallback bool
	watchRoot     string

	// background work (dynamic registration, file watching) lives until Close
	baseCtx context.Context
	stop    context.CancelFunc
	bgWG    sync.WaitGroup

	clientMu sync.RWMutex
	out      *outbound.Dispatcher

	stateMu    sync.Mutex
	state      lifecycle
	clientCaps *lsp.ClientCapabilities
	rootURI    lsp.DocumentURI
	exitCode   int
	done       chan struct{}
	doneOnce   sync.Once

	reqMu      sync.Mutex
	reqCancels map[string]context.CancelCauseFunc

	bgOnce sync.Once
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDocuments replaces the default in-memory document store.
func WithDocuments(s documents.Store) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.docs = s
		}
	}
}

// WithParamsValidation validates params against the reflected JSON Schema of
// their descriptor before decoding them.
func WithParamsValidation(enabled bool) EngineOption {
	return func(e *Engine) {
		if enabled {
			e.validator = lspservice.NewParamsValidator(e.reg.Catalog())
		} else {
			e.validator = nil
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithServerInfo sets the serverInfo reported when the initialize handler
// does not provide one.
func WithServerInfo(name, version string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.serverInfo = &lsp.ServerInfo{Name: name, Version: version}
		}
	}
}

// WithConcurrency bounds how many Concurrent messages run at once.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) { e.sched = newScheduler(n) }
}

// WithFileWatchFallback makes the engine watch the workspace itself when the
// client cannot register file watchers dynamically. root overrides the
// rootUri sent in initialize and may be empty.
func WithFileWatchFallback(root string) EngineOption {
	return func(e *Engine) {
		e.watchFallback = true
		e.watchRoot = root
	}
}

// New constructs an Engine serving reg. A nil reg gets an empty registry.
func New(reg *lspservice.Registry, opts ...EngineOption) *Engine {
	if reg == nil {
		reg = lspservice.NewRegistry()
	}
	docs, _ := memory.New(memory.DefaultMaxDocuments)
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		reg:        reg,
		docs:       docs,
		log:        slog.Default(),
		tracer:     otel.GetTracerProvider().Tracer(instrumentationName),
		sched:      newScheduler(DefaultConcurrency),
		baseCtx:    ctx,
		stop:       cancel,
		done:       make(chan struct{}),
		reqCancels: make(map[string]context.CancelCauseFunc),
	}

	// Apply options (order matters; later options override earlier ones).
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the registry the engine dispatches to.
func (e *Engine) Registry() *lspservice.Registry { return e.reg }

// Documents returns the open-document store.
func (e *Engine) Documents() documents.Store { return e.docs }

// Attach connects the engine to a transport for server-initiated messages.
// Responses read from the client must be passed to HandleClientResponse.
func (e *Engine) Attach(w MessageWriter) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	if e.out != nil {
		e.out.Close(nil)
	}
	e.out = outbound.New(writerTransport{w: w})
}

func (e *Engine) outbound() *outbound.Dispatcher {
	e.clientMu.RLock()
	defer e.clientMu.RUnlock()
	return e.out
}

// HandleClientResponse routes a response to a server-initiated request.
func (e *Engine) HandleClientResponse(ctx context.Context, res *jsonrpc.Response) {
	out := e.outbound()
	if out == nil || !out.OnResponse(res) {
		e.log.WarnContext(ctx, "engine.client_response.unmatched", slog.String("id", res.ID.String()))
	}
}

// Done is closed once the exit notification has been handled.
func (e *Engine) Done() <-chan struct{} { return e.done }

// ExitCode is 0 when exit followed shutdown and 1 otherwise.
func (e *Engine) ExitCode() int {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.exitCode
}

// Close stops background work and fails pending client requests.
func (e *Engine) Close() {
	e.stop()
	if out := e.outbound(); out != nil {
		out.Close(nil)
	}
	e.bgWG.Wait()
}

// Mode returns the scheduling discipline of method. Methods nothing knows
// about are Concurrent.
func (e *Engine) Mode(method string) lspservice.DispatchMode {
	if d, ok := e.reg.Lookup(lsp.Method(method)); ok {
		return d.Mode()
	}
	if regs := e.reg.Resolve(lsp.Method(method)); len(regs) > 0 {
		return regs[0].Descriptor().Mode()
	}
	return lspservice.Concurrent
}

// Submit queues a request or notification for scheduled dispatch. reply
// receives the response of requests. $/cancelRequest bypasses the queue so it
// can reach requests that are queued or running.
func (e *Engine) Submit(ctx context.Context, req *jsonrpc.Request, reply func(*jsonrpc.Response)) {
	if lsp.Method(req.Method) == lsp.CancelRequestMethod {
		e.HandleNotification(ctx, req)
		return
	}
	if req.ID.IsNil() {
		e.sched.enqueue(e.Mode(req.Method), func() { e.HandleNotification(ctx, req) })
		return
	}

	// track at enqueue time so that a cancel can overtake a queued request
	rctx, cancel := context.WithCancelCause(ctx)
	if err := e.trackRequest(req.ID, cancel); err != nil {
		cancel(nil)
		if reply != nil {
			reply(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, err.Error(), nil))
		}
		return
	}
	e.sched.enqueue(e.Mode(req.Method), func() {
		defer e.untrackRequest(req.ID)
		defer cancel(nil)
		resp := e.handleRequest(rctx, req)
		if reply != nil {
			reply(resp)
		}
	})
}

// Run starts queued messages until ctx ends or the exit notification is
// handled, then waits for running handlers.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := e.sched.run(ctx)
	select {
	case <-e.done:
		return nil
	default:
		return err
	}
}

func (e *Engine) trackRequest(id *jsonrpc.RequestID, cancel context.CancelCauseFunc) error {
	key := id.Key()
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	if _, exists := e.reqCancels[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequestID, id.String())
	}
	e.reqCancels[key] = cancel
	return nil
}

func (e *Engine) untrackRequest(id *jsonrpc.RequestID) {
	e.reqMu.Lock()
	delete(e.reqCancels, id.Key())
	e.reqMu.Unlock()
}

func (e *Engine) cancelRequest(ctx context.Context, raw json.RawMessage) {
	var params lsp.CancelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		e.log.InfoContext(ctx, "engine.cancel.invalid", slog.String("err", err.Error()))
		return
	}
	var id jsonrpc.RequestID
	if err := id.UnmarshalJSON(params.ID); err != nil || id.IsNil() {
		e.log.InfoContext(ctx, "engine.cancel.invalid", slog.String("err", "missing request id"))
		return
	}

	e.reqMu.Lock()
	cancel, exists := e.reqCancels[id.Key()]
	e.reqMu.Unlock()
	if exists {
		cancel(ErrRequestCancelled)
	}
	e.log.InfoContext(ctx, "engine.cancel.dispatched", slog.String("request_id", id.String()), slog.Bool("had_cancel", exists))
}

// HandleRequest dispatches one request and returns its response. It does not
// go through the scheduler; transports use Submit.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := e.trackRequest(req.ID, cancel); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, err.Error(), nil)
	}
	defer e.untrackRequest(req.ID)
	return e.handleRequest(ctx, req)
}

func (e *Engine) handleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	method := lsp.Method(req.Method)
	log := e.log.With(slog.String("method", req.Method))
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: jsonrpc.TypeRequest})
	ctx, span := e.startSpan(ctx, req.Method, req.ID)
	defer span.End()

	res, err := e.serveRequest(ctx, method, req.Params)
	if err != nil {
		return e.errorResponse(ctx, log, span, req.ID, err, start)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		return e.errorResponse(ctx, log, span, req.ID, err, start)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

func (e *Engine) serveRequest(ctx context.Context, method lsp.Method, raw json.RawMessage) (any, error) {
	if err := context.Cause(ctx); ctx.Err() != nil {
		return nil, err
	}
	if err := e.admitRequest(method); err != nil {
		return nil, err
	}
	ctx = e.withClient(ctx)

	switch method {
	case lsp.InitializeMethod:
		res, err := e.initialize(ctx, raw)
		e.finishInitialize(err == nil)
		return res, err
	case lsp.ShutdownMethod:
		return nil, e.shutdown(ctx, raw)
	}

	ctx, regs, params, err := e.resolve(ctx, method, raw)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		// handlers exist but none claims this document
		return nil, nil
	}
	return e.invoke(ctx, regs[0], params, raw)
}

// admitRequest applies the lifecycle rules. It claims the initializing
// state for the first initialize.
func (e *Engine) admitRequest(method lsp.Method) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	switch e.state {
	case stateUninitialized:
		if method == lsp.InitializeMethod {
			e.state = stateInitializing
			return nil
		}
		return jsonrpc.NewError(jsonrpc.ErrorCodeServerNotInitialized, "server not initialized")
	case stateInitializing:
		if method == lsp.InitializeMethod {
			return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "initialize already in progress")
		}
		return jsonrpc.NewError(jsonrpc.ErrorCodeServerNotInitialized, "server not initialized")
	case stateInitialized:
		if method == lsp.InitializeMethod {
			return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "server already initialized")
		}
		return nil
	default:
		return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "server is shutting down")
	}
}

// HandleNotification dispatches one notification to every matching handler.
// Handler failures are logged; notifications have no response.
func (e *Engine) HandleNotification(ctx context.Context, note *jsonrpc.Request) {
	start := time.Now()
	method := lsp.Method(note.Method)
	log := e.log.With(slog.String("method", note.Method))
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: note.Method, Type: jsonrpc.TypeNotification})

	if method == lsp.CancelRequestMethod {
		e.cancelRequest(ctx, note.Params)
		return
	}

	ctx, span := e.startSpan(ctx, note.Method, nil)
	defer span.End()

	if method == lsp.ExitMethod {
		e.exit(ctx, note.Params)
		return
	}

	e.stateMu.Lock()
	st := e.state
	e.stateMu.Unlock()
	if st != stateInitialized {
		log.InfoContext(ctx, "engine.handle_notification.dropped", slog.String("reason", "lifecycle"))
		return
	}
	ctx = e.withClient(ctx)

	syncDoc := func() {
		if err := e.syncDocument(ctx, method, note.Params); err != nil {
			log.WarnContext(ctx, "engine.documents.sync_fail", slog.String("err", err.Error()))
		}
	}
	// didClose handlers still resolve against the open document.
	if method == lsp.DidCloseMethod {
		defer syncDoc()
	} else {
		syncDoc()
	}

	ctx, regs, params, err := e.resolve(ctx, method, note.Params)
	switch {
	case errors.Is(err, errMethodNotFound):
		log.InfoContext(ctx, "engine.handle_notification.unsupported")
	case err != nil:
		span.RecordError(err)
		log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
	default:
		failed := 0
		for _, reg := range regs {
			if _, err := e.invoke(ctx, reg, e.changeParamsFor(ctx, reg, params), note.Params); err != nil {
				failed++
				span.RecordError(err)
				log.ErrorContext(ctx, "engine.handle_notification.fail", slog.String("registration_id", reg.ID()), slog.String("err", err.Error()))
			}
		}
		if failed > 0 {
			span.SetStatus(codes.Error, "handler failed")
		}
		log.InfoContext(ctx, "engine.handle_notification.ok", slog.Int("handlers", len(regs)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}

	if method == lsp.InitializedMethod {
		e.startBackground(ctx)
	}
}

// resolve decodes params and selects the registrations for method. Document
// scoped params narrow the selection to handlers whose selector matches.
func (e *Engine) resolve(ctx context.Context, method lsp.Method, raw json.RawMessage) (context.Context, []*lspservice.Registration, any, error) {
	all := e.reg.Resolve(method)
	if len(all) == 0 {
		return ctx, nil, nil, fmt.Errorf("%w: %s", errMethodNotFound, method)
	}
	if e.validator != nil {
		if err := e.validator.Validate(method, raw); err != nil {
			return ctx, nil, nil, err
		}
	}
	params, err := all[0].Descriptor().Decode(raw)
	if err != nil {
		return ctx, nil, nil, err
	}

	tp, ok := params.(lsp.TextDocumentParams)
	if !ok {
		return ctx, all, params, nil
	}
	doc := lsp.Document{URI: tp.TextDocumentURI(), LanguageID: e.languageID(ctx, tp)}
	ctx = logctx.WithDocumentData(ctx, &logctx.DocumentData{URI: string(doc.URI), LanguageID: doc.LanguageID})
	matched := make([]*lspservice.Registration, 0, len(all))
	for _, reg := range all {
		if reg.Matches(doc) {
			matched = append(matched, reg)
		}
	}
	return ctx, matched, params, nil
}

// invoke calls reg, decoding raw again when reg uses another descriptor than
// the one params came from (explicit-method registrations).
func (e *Engine) invoke(ctx context.Context, reg *lspservice.Registration, params any, raw json.RawMessage) (any, error) {
	res, err := reg.Invoke(ctx, params)
	if errors.Is(err, lspservice.ErrHandlerMismatch) {
		p, derr := reg.Descriptor().Decode(raw)
		if derr != nil {
			return nil, derr
		}
		return reg.Invoke(ctx, p)
	}
	return res, err
}

// changeParamsFor collapses incremental didChange params into one full-text
// change for registrations that asked for full sync. The store already holds
// the edited text.
func (e *Engine) changeParamsFor(ctx context.Context, reg *lspservice.Registration, params any) any {
	p, ok := params.(*lsp.DidChangeTextDocumentParams)
	if !ok {
		return params
	}
	opts, ok := reg.Options().(lsp.TextDocumentChangeRegistrationOptions)
	if !ok || opts.SyncKind != lsp.TextDocumentSyncKindFull {
		return params
	}
	incremental := false
	for _, c := range p.ContentChanges {
		if c.Range != nil {
			incremental = true
			break
		}
	}
	if !incremental {
		return params
	}
	doc, err := e.docs.Get(ctx, p.TextDocument.URI)
	if err != nil || doc == nil {
		e.log.WarnContext(ctx, "engine.documents.full_text_unavailable", slog.String("registration_id", reg.ID()))
		return params
	}
	full := *p
	full.ContentChanges = []lsp.TextDocumentContentChangeEvent{{Text: doc.Text}}
	return &full
}

func (e *Engine) languageID(ctx context.Context, tp lsp.TextDocumentParams) string {
	if open, ok := tp.(*lsp.DidOpenTextDocumentParams); ok {
		return open.TextDocument.LanguageID
	}
	doc, err := e.docs.Get(ctx, tp.TextDocumentURI())
	if err != nil {
		e.log.WarnContext(ctx, "engine.documents.get_fail", slog.String("err", err.Error()))
		return ""
	}
	if doc == nil {
		return ""
	}
	return doc.LanguageID
}

// syncDocument keeps the document store current. It runs before handlers,
// except for didClose.
func (e *Engine) syncDocument(ctx context.Context, method lsp.Method, raw json.RawMessage) error {
	switch method {
	case lsp.DidOpenMethod:
		var p lsp.DidOpenTextDocumentParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return e.docs.Open(ctx, p.TextDocument)
	case lsp.DidChangeMethod:
		var p lsp.DidChangeTextDocumentParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		_, err := e.docs.Change(ctx, p.TextDocument.URI, p.TextDocument.Version, p.ContentChanges)
		return err
	case lsp.DidCloseMethod:
		var p lsp.DidCloseTextDocumentParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return e.docs.Close(ctx, p.TextDocument.URI)
	}
	return nil
}

func (e *Engine) withClient(ctx context.Context) context.Context {
	if out := e.outbound(); out != nil {
		return lspservice.ContextWithClient(ctx, client{d: out})
	}
	return ctx
}

func (e *Engine) startSpan(ctx context.Context, method string, id *jsonrpc.RequestID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
	}
	if !id.IsNil() {
		attrs = append(attrs, attribute.String("rpc.jsonrpc.request_id", id.String()))
	}
	return e.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}

// responseError maps a dispatch error onto a JSON-RPC error object.
func responseError(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, lspservice.ErrInvalidParams):
		return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, err.Error())
	case errors.Is(err, errMethodNotFound):
		return jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, err.Error())
	case errors.Is(err, ErrRequestCancelled), errors.Is(err, context.Canceled):
		return jsonrpc.NewError(jsonrpc.ErrorCodeRequestCancelled, "request cancelled")
	default:
		return jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, err.Error())
	}
}

func (e *Engine) errorResponse(ctx context.Context, log *slog.Logger, span trace.Span, id *jsonrpc.RequestID, err error, start time.Time) *jsonrpc.Response {
	rpcErr := responseError(err)
	dur := slog.Int64("dur_ms", time.Since(start).Milliseconds())

	switch rpcErr.Code {
	case jsonrpc.ErrorCodeInvalidParams:
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), dur)
	case jsonrpc.ErrorCodeMethodNotFound:
		log.InfoContext(ctx, "engine.handle_request.unsupported", dur)
	case jsonrpc.ErrorCodeRequestCancelled:
		log.InfoContext(ctx, "engine.handle_request.cancelled", dur)
	case jsonrpc.ErrorCodeServerNotInitialized, jsonrpc.ErrorCodeInvalidRequest:
		log.InfoContext(ctx, "engine.handle_request.rejected", slog.String("err", rpcErr.Message), dur)
	default:
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), dur)
	}

	span.RecordError(err)
	span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", int(rpcErr.Code)))
	span.SetStatus(codes.Error, rpcErr.Message)
	return jsonrpc.NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}
