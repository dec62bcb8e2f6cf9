package lspservice

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/lsp-server-go/lsp"
)

// Lifecycle

type InitializeHandler interface {
	Initialize(ctx context.Context, params *lsp.InitializeParams) (*lsp.InitializeResult, error)
}

type InitializedHandler interface {
	Initialized(ctx context.Context, params *lsp.InitializedParams) error
}

type ShutdownHandler interface {
	Shutdown(ctx context.Context) error
}

type ExitHandler interface {
	Exit(ctx context.Context) error
}

type SetTraceHandler interface {
	SetTrace(ctx context.Context, params *lsp.SetTraceParams) error
}

// Text document synchronization

type DidOpenTextDocumentHandler interface {
	DidOpen(ctx context.Context, params *lsp.DidOpenTextDocumentParams) error
}

type DidChangeTextDocumentHandler interface {
	DidChange(ctx context.Context, params *lsp.DidChangeTextDocumentParams) error
}

type DidCloseTextDocumentHandler interface {
	DidClose(ctx context.Context, params *lsp.DidCloseTextDocumentParams) error
}

type DidSaveTextDocumentHandler interface {
	DidSave(ctx context.Context, params *lsp.DidSaveTextDocumentParams) error
}

// TextDocumentSyncHandler bundles the four synchronization notifications.
// Registering one yields four registrations that share the handler and its
// document selector.
type TextDocumentSyncHandler interface {
	DidOpenTextDocumentHandler
	DidChangeTextDocumentHandler
	DidCloseTextDocumentHandler
	DidSaveTextDocumentHandler
}

// Language features

type HoverHandler interface {
	Hover(ctx context.Context, params *lsp.HoverParams) (*lsp.Hover, error)
}

type CompletionHandler interface {
	Completion(ctx context.Context, params *lsp.CompletionParams) (*lsp.CompletionList, error)
}

type SignatureHelpHandler interface {
	SignatureHelp(ctx context.Context, params *lsp.SignatureHelpParams) (*lsp.SignatureHelp, error)
}

type DefinitionHandler interface {
	Definition(ctx context.Context, params *lsp.DefinitionParams) ([]lsp.Location, error)
}

type ReferencesHandler interface {
	References(ctx context.Context, params *lsp.ReferenceParams) ([]lsp.Location, error)
}

type DocumentFormattingHandler interface {
	Format(ctx context.Context, params *lsp.DocumentFormattingParams) ([]lsp.TextEdit, error)
}

// DocumentOnTypeFormattingHandler formats while the user types. Its method is
// dispatched in order since edits are computed against the latest text.
type DocumentOnTypeFormattingHandler interface {
	FormatOnType(ctx context.Context, params *lsp.DocumentOnTypeFormattingParams) ([]lsp.TextEdit, error)
}

// Workspace

type DidChangeConfigurationHandler interface {
	DidChangeConfiguration(ctx context.Context, params *lsp.DidChangeConfigurationParams) error
}

type DidChangeWatchedFilesHandler interface {
	DidChangeWatchedFiles(ctx context.Context, params *lsp.DidChangeWatchedFilesParams) error
}

type ExecuteCommandHandler interface {
	ExecuteCommand(ctx context.Context, params *lsp.ExecuteCommandParams) (any, error)
}

// Ad-hoc methods

// RawRequestHandler serves a request method that has no typed descriptor. It
// receives the undecoded params and returns a JSON-encodable result.
type RawRequestHandler interface {
	HandleRequest(ctx context.Context, params json.RawMessage) (any, error)
}

// RawNotificationHandler serves a notification method that has no typed
// descriptor.
type RawNotificationHandler interface {
	HandleNotification(ctx context.Context, params json.RawMessage) error
}

// RequestHandlerFunc adapts a function to RawRequestHandler. Function values
// are not comparable, so registrations built from one can only be removed by
// method or id.
type RequestHandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (f RequestHandlerFunc) HandleRequest(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// NotificationHandlerFunc adapts a function to RawNotificationHandler.
type NotificationHandlerFunc func(ctx context.Context, params json.RawMessage) error

func (f NotificationHandlerFunc) HandleNotification(ctx context.Context, params json.RawMessage) error {
	return f(ctx, params)
}

// Registration options providers. A handler that does not implement the
// provider for its method is registered with zero-value options, i.e. with a
// nil document selector that matches every document.

type TextDocumentRegistrationProvider interface {
	TextDocumentRegistrationOptions() lsp.TextDocumentRegistrationOptions
}

// ChangeRegistrationProvider overrides the didChange options. Without it the
// handler's TextDocumentRegistrationOptions are used with full sync.
type ChangeRegistrationProvider interface {
	ChangeRegistrationOptions() lsp.TextDocumentChangeRegistrationOptions
}

// SaveRegistrationProvider overrides the didSave options. Without it the
// handler's TextDocumentRegistrationOptions are used and text is not
// requested.
type SaveRegistrationProvider interface {
	SaveRegistrationOptions() lsp.TextDocumentSaveRegistrationOptions
}

type CompletionRegistrationProvider interface {
	CompletionRegistrationOptions() lsp.CompletionRegistrationOptions
}

type SignatureHelpRegistrationProvider interface {
	SignatureHelpRegistrationOptions() lsp.SignatureHelpRegistrationOptions
}

type OnTypeFormattingRegistrationProvider interface {
	OnTypeFormattingRegistrationOptions() lsp.DocumentOnTypeFormattingRegistrationOptions
}

type ExecuteCommandRegistrationProvider interface {
	ExecuteCommandRegistrationOptions() lsp.ExecuteCommandRegistrationOptions
}

type WatchedFilesRegistrationProvider interface {
	WatchedFilesRegistrationOptions() lsp.DidChangeWatchedFilesRegistrationOptions
}

// Client capability receivers. Each (handler, capability) pair is supplied
// exactly once, during negotiation or when the handler is added afterwards.

type SynchronizationCapabilityReceiver interface {
	SetSynchronizationCapability(c *lsp.SynchronizationCapabilities) error
}

type HoverCapabilityReceiver interface {
	SetHoverCapability(c *lsp.HoverCapabilities) error
}

type CompletionCapabilityReceiver interface {
	SetCompletionCapability(c *lsp.CompletionCapabilities) error
}

type SignatureHelpCapabilityReceiver interface {
	SetSignatureHelpCapability(c *lsp.SignatureHelpCapabilities) error
}

type DefinitionCapabilityReceiver interface {
	SetDefinitionCapability(c *lsp.DefinitionCapabilities) error
}

type ReferencesCapabilityReceiver interface {
	SetReferencesCapability(c *lsp.ReferencesCapabilities) error
}

type FormattingCapabilityReceiver interface {
	SetFormattingCapability(c *lsp.DocumentFormattingCapabilities) error
}

type OnTypeFormattingCapabilityReceiver interface {
	SetOnTypeFormattingCapability(c *lsp.DocumentOnTypeFormattingCapabilities) error
}

type DidChangeConfigurationCapabilityReceiver interface {
	SetDidChangeConfigurationCapability(c *lsp.DidChangeConfigurationCapabilities) error
}

type DidChangeWatchedFilesCapabilityReceiver interface {
	SetDidChangeWatchedFilesCapability(c *lsp.DidChangeWatchedFilesCapabilities) error
}

type ExecuteCommandCapabilityReceiver interface {
	SetExecuteCommandCapability(c *lsp.ExecuteCommandCapabilities) error
}
