// Package lspservicetest provides small handler doubles for exercising a
// lspservice.Registry and the dispatcher. Each double implements exactly the
// interfaces of one handler shape; combine them by registering several.
package lspservicetest

import (
	"context"
	"sync"

	"github.com/ggoodman/lsp-server-go/lsp"
)

// Call is one recorded handler invocation.
type Call struct {
	Handler string
	Method  lsp.Method
	Params  any
}

// Recorder collects invocations and supplied capabilities. The zero value is
// ready to use and safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	caps  map[string]int
}

func (r *Recorder) record(handler string, method lsp.Method, params any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Handler: handler, Method: method, Params: params})
}

func (r *Recorder) recordCapability(handler, capability string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.caps == nil {
		r.caps = make(map[string]int)
	}
	r.caps[handler+"/"+capability]++
}

// Calls returns the invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Methods returns the invoked methods in order.
func (r *Recorder) Methods() []lsp.Method {
	calls := r.Calls()
	out := make([]lsp.Method, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}

// CapabilitySupplies reports how often handler received capability.
func (r *Recorder) CapabilitySupplies(handler, capability string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps[handler+"/"+capability]
}

// TextDocumentSync implements lspservice.TextDocumentSyncHandler for the
// documents matched by Selector.
type TextDocumentSync struct {
	Name        string
	Selector    lsp.DocumentSelector
	SyncKind    lsp.TextDocumentSyncKind
	IncludeText bool
	Recorder    *Recorder
	// CapabilityErr is returned from SetSynchronizationCapability.
	CapabilityErr error

	mu   sync.Mutex
	Caps *lsp.SynchronizationCapabilities
}

func (h *TextDocumentSync) DidOpen(ctx context.Context, p *lsp.DidOpenTextDocumentParams) error {
	h.Recorder.record(h.Name, lsp.DidOpenMethod, p)
	return nil
}

func (h *TextDocumentSync) DidChange(ctx context.Context, p *lsp.DidChangeTextDocumentParams) error {
	h.Recorder.record(h.Name, lsp.DidChangeMethod, p)
	return nil
}

func (h *TextDocumentSync) DidClose(ctx context.Context, p *lsp.DidCloseTextDocumentParams) error {
	h.Recorder.record(h.Name, lsp.DidCloseMethod, p)
	return nil
}

func (h *TextDocumentSync) DidSave(ctx context.Context, p *lsp.DidSaveTextDocumentParams) error {
	h.Recorder.record(h.Name, lsp.DidSaveMethod, p)
	return nil
}

func (h *TextDocumentSync) TextDocumentRegistrationOptions() lsp.TextDocumentRegistrationOptions {
	return lsp.TextDocumentRegistrationOptions{DocumentSelector: h.Selector}
}

func (h *TextDocumentSync) ChangeRegistrationOptions() lsp.TextDocumentChangeRegistrationOptions {
	kind := h.SyncKind
	if kind == lsp.TextDocumentSyncKindNone {
		kind = lsp.TextDocumentSyncKindFull
	}
	return lsp.TextDocumentChangeRegistrationOptions{
		TextDocumentRegistrationOptions: h.TextDocumentRegistrationOptions(),
		SyncKind:                        kind,
	}
}

func (h *TextDocumentSync) SaveRegistrationOptions() lsp.TextDocumentSaveRegistrationOptions {
	return lsp.TextDocumentSaveRegistrationOptions{
		TextDocumentRegistrationOptions: h.TextDocumentRegistrationOptions(),
		IncludeText:                     lsp.Bool(h.IncludeText),
	}
}

func (h *TextDocumentSync) SetSynchronizationCapability(c *lsp.SynchronizationCapabilities) error {
	h.Recorder.recordCapability(h.Name, "synchronization")
	h.mu.Lock()
	h.Caps = c
	h.mu.Unlock()
	return h.CapabilityErr
}

// Hover implements lspservice.HoverHandler.
type Hover struct {
	Name     string
	Selector lsp.DocumentSelector
	Result   *lsp.Hover
	Err      error
	Recorder *Recorder
	// Block, when non-nil, delays the response until it is closed or the
	// request context ends.
	Block chan struct{}

	CapabilityErr error
	// CapabilityBlock, when non-nil, holds SetHoverCapability until it is
	// closed.
	CapabilityBlock chan struct{}
}

func (h *Hover) Hover(ctx context.Context, p *lsp.HoverParams) (*lsp.Hover, error) {
	h.Recorder.record(h.Name, lsp.HoverMethod, p)
	if h.Block != nil {
		select {
		case <-h.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.Result, h.Err
}

func (h *Hover) TextDocumentRegistrationOptions() lsp.TextDocumentRegistrationOptions {
	return lsp.TextDocumentRegistrationOptions{DocumentSelector: h.Selector}
}

func (h *Hover) SetHoverCapability(c *lsp.HoverCapabilities) error {
	if h.CapabilityBlock != nil {
		<-h.CapabilityBlock
	}
	h.Recorder.recordCapability(h.Name, "hover")
	return h.CapabilityErr
}

// Completion implements lspservice.CompletionHandler.
type Completion struct {
	Name              string
	Selector          lsp.DocumentSelector
	TriggerCharacters []string
	Items             []lsp.CompletionItem
	Recorder          *Recorder
}

func (h *Completion) Completion(ctx context.Context, p *lsp.CompletionParams) (*lsp.CompletionList, error) {
	h.Recorder.record(h.Name, lsp.CompletionMethod, p)
	return &lsp.CompletionList{Items: h.Items}, nil
}

func (h *Completion) CompletionRegistrationOptions() lsp.CompletionRegistrationOptions {
	return lsp.CompletionRegistrationOptions{
		TextDocumentRegistrationOptions: lsp.TextDocumentRegistrationOptions{DocumentSelector: h.Selector},
		CompletionOptions:               lsp.CompletionOptions{TriggerCharacters: h.TriggerCharacters},
	}
}

// Lifecycle implements the initialize, initialized, shutdown and exit
// handlers.
type Lifecycle struct {
	Name     string
	Result   *lsp.InitializeResult
	Recorder *Recorder
}

func (h *Lifecycle) Initialize(ctx context.Context, p *lsp.InitializeParams) (*lsp.InitializeResult, error) {
	h.Recorder.record(h.Name, lsp.InitializeMethod, p)
	if h.Result != nil {
		return h.Result, nil
	}
	return &lsp.InitializeResult{ServerInfo: &lsp.ServerInfo{Name: h.Name}}, nil
}

func (h *Lifecycle) Initialized(ctx context.Context, p *lsp.InitializedParams) error {
	h.Recorder.record(h.Name, lsp.InitializedMethod, p)
	return nil
}

func (h *Lifecycle) Shutdown(ctx context.Context) error {
	h.Recorder.record(h.Name, lsp.ShutdownMethod, nil)
	return nil
}

func (h *Lifecycle) Exit(ctx context.Context) error {
	h.Recorder.record(h.Name, lsp.ExitMethod, nil)
	return nil
}

// Configuration implements lspservice.DidChangeConfigurationHandler.
type Configuration struct {
	Name     string
	Recorder *Recorder
}

func (h *Configuration) DidChangeConfiguration(ctx context.Context, p *lsp.DidChangeConfigurationParams) error {
	h.Recorder.record(h.Name, lsp.DidChangeConfigurationMethod, p)
	return nil
}

// WatchedFiles implements lspservice.DidChangeWatchedFilesHandler with the
// given watchers.
type WatchedFiles struct {
	Name     string
	Watchers []lsp.FileSystemWatcher
	Recorder *Recorder
}

func (h *WatchedFiles) DidChangeWatchedFiles(ctx context.Context, p *lsp.DidChangeWatchedFilesParams) error {
	h.Recorder.record(h.Name, lsp.DidChangeWatchedFilesMethod, p)
	return nil
}

func (h *WatchedFiles) WatchedFilesRegistrationOptions() lsp.DidChangeWatchedFilesRegistrationOptions {
	return lsp.DidChangeWatchedFilesRegistrationOptions{Watchers: h.Watchers}
}
