package lsp

// DocumentSelectorOptions is implemented by registration options that scope a
// registration to a set of documents.
type DocumentSelectorOptions interface {
	GetDocumentSelector() DocumentSelector
}

// TextDocumentSyncKind describes how document changes are sent to the server.
type TextDocumentSyncKind int

const (
	TextDocumentSyncKindNone        TextDocumentSyncKind = 0
	TextDocumentSyncKindFull        TextDocumentSyncKind = 1
	TextDocumentSyncKindIncremental TextDocumentSyncKind = 2
)

// TextDocumentRegistrationOptions is the base of every document-scoped
// registration. A null selector defers to the client's own selector.
type TextDocumentRegistrationOptions struct {
	DocumentSelector DocumentSelector `json:"documentSelector"`
}

// GetDocumentSelector implements DocumentSelectorOptions.
func (o TextDocumentRegistrationOptions) GetDocumentSelector() DocumentSelector {
	return o.DocumentSelector
}

// TextDocumentChangeRegistrationOptions scopes textDocument/didChange.
type TextDocumentChangeRegistrationOptions struct {
	TextDocumentRegistrationOptions
	SyncKind TextDocumentSyncKind `json:"syncKind"`
}

// SaveOptions describes textDocument/didSave behavior.
type SaveOptions struct {
	// IncludeText asks the client to include the content on save.
	IncludeText *bool `json:"includeText,omitempty"`
}

// TextDocumentSaveRegistrationOptions scopes textDocument/didSave.
type TextDocumentSaveRegistrationOptions struct {
	TextDocumentRegistrationOptions
	IncludeText *bool `json:"includeText,omitempty"`
}

// CompletionOptions configures completion support.
type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   *bool    `json:"resolveProvider,omitempty"`
}

// CompletionRegistrationOptions scopes textDocument/completion.
type CompletionRegistrationOptions struct {
	TextDocumentRegistrationOptions
	CompletionOptions
}

// SignatureHelpOptions configures signature help.
type SignatureHelpOptions struct {
	// TriggerCharacters trigger signature help automatically.
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// SignatureHelpRegistrationOptions scopes textDocument/signatureHelp.
type SignatureHelpRegistrationOptions struct {
	TextDocumentRegistrationOptions
	SignatureHelpOptions
}

// DocumentOnTypeFormattingOptions configures format-on-type.
type DocumentOnTypeFormattingOptions struct {
	FirstTriggerCharacter string   `json:"firstTriggerCharacter"`
	MoreTriggerCharacter  []string `json:"moreTriggerCharacter,omitempty"`
}

// DocumentOnTypeFormattingRegistrationOptions scopes
// textDocument/onTypeFormatting.
type DocumentOnTypeFormattingRegistrationOptions struct {
	TextDocumentRegistrationOptions
	DocumentOnTypeFormattingOptions
}

// ExecuteCommandOptions lists the commands a server executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// ExecuteCommandRegistrationOptions scopes workspace/executeCommand.
type ExecuteCommandRegistrationOptions struct {
	ExecuteCommandOptions
}

// WatchKind is a bit set of file events a watcher is interested in.
type WatchKind int

const (
	WatchKindCreate WatchKind = 1
	WatchKindChange WatchKind = 2
	WatchKindDelete WatchKind = 4
)

// FileSystemWatcher asks the client to watch files matching GlobPattern.
type FileSystemWatcher struct {
	GlobPattern string     `json:"globPattern"`
	Kind        *WatchKind `json:"kind,omitempty"`
}

// DidChangeWatchedFilesRegistrationOptions scopes
// workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesRegistrationOptions struct {
	Watchers []FileSystemWatcher `json:"watchers"`
}
