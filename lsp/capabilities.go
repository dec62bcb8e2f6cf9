package lsp

import "encoding/json"

// MarkupKind is the content format of documentation strings.
type MarkupKind string

const (
	MarkupKindPlainText MarkupKind = "plaintext"
	MarkupKindMarkdown  MarkupKind = "markdown"
)

// Client capabilities

// SynchronizationCapabilities describes client support for document sync.
type SynchronizationCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
	WillSave            *bool `json:"willSave,omitempty"`
	WillSaveWaitUntil   *bool `json:"willSaveWaitUntil,omitempty"`
	DidSave             *bool `json:"didSave,omitempty"`
}

// HoverCapabilities describes client support for textDocument/hover.
type HoverCapabilities struct {
	DynamicRegistration *bool        `json:"dynamicRegistration,omitempty"`
	ContentFormat       []MarkupKind `json:"contentFormat,omitempty"`
}

// CompletionItemCapabilities describes client support for completion items.
type CompletionItemCapabilities struct {
	SnippetSupport *bool `json:"snippetSupport,omitempty"`
}

// CompletionCapabilities describes client support for textDocument/completion.
type CompletionCapabilities struct {
	DynamicRegistration *bool                       `json:"dynamicRegistration,omitempty"`
	CompletionItem      *CompletionItemCapabilities `json:"completionItem,omitempty"`
	ContextSupport      *bool                       `json:"contextSupport,omitempty"`
}

// SignatureHelpCapabilities describes client support for signature help.
type SignatureHelpCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// DefinitionCapabilities describes client support for go-to-definition.
type DefinitionCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
	LinkSupport         *bool `json:"linkSupport,omitempty"`
}

// ReferencesCapabilities describes client support for find-references.
type ReferencesCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// DocumentFormattingCapabilities describes client support for formatting.
type DocumentFormattingCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// DocumentOnTypeFormattingCapabilities describes client support for
// format-on-type.
type DocumentOnTypeFormattingCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// TextDocumentClientCapabilities groups document-level client capabilities.
type TextDocumentClientCapabilities struct {
	Synchronization  *SynchronizationCapabilities          `json:"synchronization,omitempty"`
	Hover            *HoverCapabilities                    `json:"hover,omitempty"`
	Completion       *CompletionCapabilities               `json:"completion,omitempty"`
	SignatureHelp    *SignatureHelpCapabilities            `json:"signatureHelp,omitempty"`
	Definition       *DefinitionCapabilities               `json:"definition,omitempty"`
	References       *ReferencesCapabilities               `json:"references,omitempty"`
	Formatting       *DocumentFormattingCapabilities       `json:"formatting,omitempty"`
	OnTypeFormatting *DocumentOnTypeFormattingCapabilities `json:"onTypeFormatting,omitempty"`
}

// DidChangeConfigurationCapabilities describes client support for
// workspace/didChangeConfiguration.
type DidChangeConfigurationCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// DidChangeWatchedFilesCapabilities describes client support for
// workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// ExecuteCommandCapabilities describes client support for
// workspace/executeCommand.
type ExecuteCommandCapabilities struct {
	DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
}

// WorkspaceClientCapabilities groups workspace-level client capabilities.
type WorkspaceClientCapabilities struct {
	ApplyEdit              *bool                               `json:"applyEdit,omitempty"`
	DidChangeConfiguration *DidChangeConfigurationCapabilities `json:"didChangeConfiguration,omitempty"`
	DidChangeWatchedFiles  *DidChangeWatchedFilesCapabilities  `json:"didChangeWatchedFiles,omitempty"`
	ExecuteCommand         *ExecuteCommandCapabilities         `json:"executeCommand,omitempty"`
}

// ClientCapabilities advertises client features during initialize.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Experimental json.RawMessage                 `json:"experimental,omitempty"`
}

// TextDocumentCapabilities returns the text document section, never nil.
func (c *ClientCapabilities) TextDocumentCapabilities() *TextDocumentClientCapabilities {
	if c == nil || c.TextDocument == nil {
		return &TextDocumentClientCapabilities{}
	}
	return c.TextDocument
}

// WorkspaceCapabilities returns the workspace section, never nil.
func (c *ClientCapabilities) WorkspaceCapabilities() *WorkspaceClientCapabilities {
	if c == nil || c.Workspace == nil {
		return &WorkspaceClientCapabilities{}
	}
	return c.Workspace
}

// Server capabilities

// TextDocumentSyncOptions advertises document sync support.
type TextDocumentSyncOptions struct {
	OpenClose *bool                 `json:"openClose,omitempty"`
	Change    *TextDocumentSyncKind `json:"change,omitempty"`
	Save      *SaveOptions          `json:"save,omitempty"`
}

// ServerCapabilities advertises server features in the initialize result.
type ServerCapabilities struct {
	TextDocumentSync                 *TextDocumentSyncOptions         `json:"textDocumentSync,omitempty"`
	HoverProvider                    *bool                            `json:"hoverProvider,omitempty"`
	CompletionProvider               *CompletionOptions               `json:"completionProvider,omitempty"`
	SignatureHelpProvider            *SignatureHelpOptions            `json:"signatureHelpProvider,omitempty"`
	DefinitionProvider               *bool                            `json:"definitionProvider,omitempty"`
	ReferencesProvider               *bool                            `json:"referencesProvider,omitempty"`
	DocumentFormattingProvider       *bool                            `json:"documentFormattingProvider,omitempty"`
	DocumentOnTypeFormattingProvider *DocumentOnTypeFormattingOptions `json:"documentOnTypeFormattingProvider,omitempty"`
	ExecuteCommandProvider           *ExecuteCommandOptions           `json:"executeCommandProvider,omitempty"`
	Experimental                     any                              `json:"experimental,omitempty"`
}
