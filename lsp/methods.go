package lsp

// Method is an LSP method identifier used in JSON-RPC messages.
type Method string

// LSP method names and notifications.
const (
	// Lifecycle
	InitializeMethod           Method = "initialize"
	InitializedMethod          Method = "initialized"
	ShutdownMethod             Method = "shutdown"
	ExitMethod                 Method = "exit"
	CancelRequestMethod        Method = "$/cancelRequest"
	SetTraceMethod             Method = "$/setTrace"
	RegisterCapabilityMethod   Method = "client/registerCapability"
	UnregisterCapabilityMethod Method = "client/unregisterCapability"

	// Text document synchronization
	DidOpenMethod   Method = "textDocument/didOpen"
	DidChangeMethod Method = "textDocument/didChange"
	DidCloseMethod  Method = "textDocument/didClose"
	DidSaveMethod   Method = "textDocument/didSave"

	// Language features
	HoverMethod            Method = "textDocument/hover"
	CompletionMethod       Method = "textDocument/completion"
	SignatureHelpMethod    Method = "textDocument/signatureHelp"
	DefinitionMethod       Method = "textDocument/definition"
	ReferencesMethod       Method = "textDocument/references"
	FormattingMethod       Method = "textDocument/formatting"
	OnTypeFormattingMethod Method = "textDocument/onTypeFormatting"

	// Workspace
	DidChangeConfigurationMethod Method = "workspace/didChangeConfiguration"
	DidChangeWatchedFilesMethod  Method = "workspace/didChangeWatchedFiles"
	ExecuteCommandMethod         Method = "workspace/executeCommand"

	// Server -> client
	PublishDiagnosticsMethod Method = "textDocument/publishDiagnostics"
	LogMessageMethod         Method = "window/logMessage"
)

// IsProtocolImplementationDependent reports whether the method uses the "$/"
// prefix. Unhandled notifications of that kind are dropped silently and
// unhandled requests are answered with MethodNotFound.
func (m Method) IsProtocolImplementationDependent() bool {
	return len(m) >= 2 && m[0] == '$' && m[1] == '/'
}
