package lspservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ggoodman/lsp-server-go/lsp"
)

// ErrDuplicateMethod is returned when two descriptors claim the same method.
var ErrDuplicateMethod = errors.New("duplicate method descriptor")

// Catalog is an immutable set of descriptors keyed by method name. Iteration
// follows construction order.
type Catalog struct {
	order    []*Descriptor
	byMethod map[lsp.Method]*Descriptor
}

// NewCatalog builds a catalog from descriptors. Method names must be unique.
func NewCatalog(descriptors ...*Descriptor) (*Catalog, error) {
	c := &Catalog{byMethod: make(map[lsp.Method]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d == nil {
			continue
		}
		if d.method == "" {
			return nil, errors.New("descriptor with empty method name")
		}
		if _, exists := c.byMethod[d.method]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMethod, d.method)
		}
		c.byMethod[d.method] = d
		c.order = append(c.order, d)
	}
	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on error. Intended for
// package-level catalogs.
func MustNewCatalog(descriptors ...*Descriptor) *Catalog {
	c, err := NewCatalog(descriptors...)
	if err != nil {
		panic(err)
	}
	return c
}

// Extend returns a new catalog holding c's descriptors followed by extra.
func (c *Catalog) Extend(extra ...*Descriptor) (*Catalog, error) {
	all := make([]*Descriptor, 0, len(c.order)+len(extra))
	all = append(all, c.order...)
	all = append(all, extra...)
	return NewCatalog(all...)
}

// Lookup returns the descriptor for method.
func (c *Catalog) Lookup(method lsp.Method) (*Descriptor, bool) {
	d, ok := c.byMethod[method]
	return d, ok
}

// Descriptors returns the descriptors in construction order.
func (c *Catalog) Descriptors() []*Descriptor { return slices.Clone(c.order) }

// Len returns the number of descriptors.
func (c *Catalog) Len() int { return len(c.order) }

// satisfiedBy returns every descriptor h implements.
func (c *Catalog) satisfiedBy(h any) []*Descriptor {
	var out []*Descriptor
	for _, d := range c.order {
		if d.Satisfies(h) {
			out = append(out, d)
		}
	}
	return out
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return MustNewCatalog(StandardDescriptors()...)
})

// DefaultCatalog returns the shared catalog of every method modeled in
// package lsp. It is read-only.
func DefaultCatalog() *Catalog { return defaultCatalog() }

// StandardDescriptors returns fresh descriptors for the methods modeled in
// package lsp. Use it with Catalog.Extend or NewCatalog to add custom methods.
func StandardDescriptors() []*Descriptor {
	return []*Descriptor{
		// Lifecycle
		NewRequestDescriptor(lsp.InitializeMethod, InitializeHandler.Initialize, WithDispatchMode(Ordered)),
		NewNotificationDescriptor(lsp.InitializedMethod, InitializedHandler.Initialized, WithDispatchMode(Ordered)),
		NewRequestDescriptor(lsp.ShutdownMethod, func(h ShutdownHandler, ctx context.Context, _ *struct{}) (any, error) {
			return nil, h.Shutdown(ctx)
		}, WithDispatchMode(Ordered)),
		NewNotificationDescriptor(lsp.ExitMethod, func(h ExitHandler, ctx context.Context, _ *struct{}) error {
			return h.Exit(ctx)
		}, WithDispatchMode(Ordered)),
		NewNotificationDescriptor(lsp.SetTraceMethod, SetTraceHandler.SetTrace),

		// Text document synchronization
		NewNotificationDescriptor(lsp.DidOpenMethod, DidOpenTextDocumentHandler.DidOpen,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(textDocumentOptions, advertiseOpenClose),
			synchronizationCapability,
		),
		NewNotificationDescriptor(lsp.DidChangeMethod, DidChangeTextDocumentHandler.DidChange,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(changeOptions, advertiseChange),
			synchronizationCapability,
		),
		NewNotificationDescriptor(lsp.DidCloseMethod, DidCloseTextDocumentHandler.DidClose,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(textDocumentOptions, advertiseOpenClose),
			synchronizationCapability,
		),
		NewNotificationDescriptor(lsp.DidSaveMethod, DidSaveTextDocumentHandler.DidSave,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(saveOptions, advertiseSave),
			synchronizationCapability,
		),

		// Language features
		NewRequestDescriptor(lsp.HoverMethod, HoverHandler.Hover,
			WithRegistrationOptions(textDocumentOptions, func(caps *lsp.ServerCapabilities, _ lsp.TextDocumentRegistrationOptions) {
				caps.HoverProvider = lsp.Bool(true)
			}),
			WithClientCapability("textDocument.hover",
				func(c *lsp.ClientCapabilities) *lsp.HoverCapabilities { return c.TextDocumentCapabilities().Hover },
				HoverCapabilityReceiver.SetHoverCapability,
				func(c *lsp.HoverCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.CompletionMethod, CompletionHandler.Completion,
			WithRegistrationOptions(completionOptions, advertiseCompletion),
			WithClientCapability("textDocument.completion",
				func(c *lsp.ClientCapabilities) *lsp.CompletionCapabilities { return c.TextDocumentCapabilities().Completion },
				CompletionCapabilityReceiver.SetCompletionCapability,
				func(c *lsp.CompletionCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.SignatureHelpMethod, SignatureHelpHandler.SignatureHelp,
			WithRegistrationOptions(signatureHelpOptions, advertiseSignatureHelp),
			WithClientCapability("textDocument.signatureHelp",
				func(c *lsp.ClientCapabilities) *lsp.SignatureHelpCapabilities { return c.TextDocumentCapabilities().SignatureHelp },
				SignatureHelpCapabilityReceiver.SetSignatureHelpCapability,
				func(c *lsp.SignatureHelpCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.DefinitionMethod, DefinitionHandler.Definition,
			WithRegistrationOptions(textDocumentOptions, func(caps *lsp.ServerCapabilities, _ lsp.TextDocumentRegistrationOptions) {
				caps.DefinitionProvider = lsp.Bool(true)
			}),
			WithClientCapability("textDocument.definition",
				func(c *lsp.ClientCapabilities) *lsp.DefinitionCapabilities { return c.TextDocumentCapabilities().Definition },
				DefinitionCapabilityReceiver.SetDefinitionCapability,
				func(c *lsp.DefinitionCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.ReferencesMethod, ReferencesHandler.References,
			WithRegistrationOptions(textDocumentOptions, func(caps *lsp.ServerCapabilities, _ lsp.TextDocumentRegistrationOptions) {
				caps.ReferencesProvider = lsp.Bool(true)
			}),
			WithClientCapability("textDocument.references",
				func(c *lsp.ClientCapabilities) *lsp.ReferencesCapabilities { return c.TextDocumentCapabilities().References },
				ReferencesCapabilityReceiver.SetReferencesCapability,
				func(c *lsp.ReferencesCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.FormattingMethod, DocumentFormattingHandler.Format,
			WithRegistrationOptions(textDocumentOptions, func(caps *lsp.ServerCapabilities, _ lsp.TextDocumentRegistrationOptions) {
				caps.DocumentFormattingProvider = lsp.Bool(true)
			}),
			WithClientCapability("textDocument.formatting",
				func(c *lsp.ClientCapabilities) *lsp.DocumentFormattingCapabilities { return c.TextDocumentCapabilities().Formatting },
				FormattingCapabilityReceiver.SetFormattingCapability,
				func(c *lsp.DocumentFormattingCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.OnTypeFormattingMethod, DocumentOnTypeFormattingHandler.FormatOnType,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(onTypeFormattingOptions, advertiseOnTypeFormatting),
			WithClientCapability("textDocument.onTypeFormatting",
				func(c *lsp.ClientCapabilities) *lsp.DocumentOnTypeFormattingCapabilities {
					return c.TextDocumentCapabilities().OnTypeFormatting
				},
				OnTypeFormattingCapabilityReceiver.SetOnTypeFormattingCapability,
				func(c *lsp.DocumentOnTypeFormattingCapabilities) *bool { return c.DynamicRegistration }),
		),

		// Workspace
		NewNotificationDescriptor(lsp.DidChangeConfigurationMethod, DidChangeConfigurationHandler.DidChangeConfiguration,
			WithDispatchMode(Ordered),
			WithClientCapability("workspace.didChangeConfiguration",
				func(c *lsp.ClientCapabilities) *lsp.DidChangeConfigurationCapabilities {
					return c.WorkspaceCapabilities().DidChangeConfiguration
				},
				DidChangeConfigurationCapabilityReceiver.SetDidChangeConfigurationCapability,
				func(c *lsp.DidChangeConfigurationCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewNotificationDescriptor(lsp.DidChangeWatchedFilesMethod, DidChangeWatchedFilesHandler.DidChangeWatchedFiles,
			WithDispatchMode(Ordered),
			WithRegistrationOptions(watchedFilesOptions, nil),
			WithClientCapability("workspace.didChangeWatchedFiles",
				func(c *lsp.ClientCapabilities) *lsp.DidChangeWatchedFilesCapabilities {
					return c.WorkspaceCapabilities().DidChangeWatchedFiles
				},
				DidChangeWatchedFilesCapabilityReceiver.SetDidChangeWatchedFilesCapability,
				func(c *lsp.DidChangeWatchedFilesCapabilities) *bool { return c.DynamicRegistration }),
		),
		NewRequestDescriptor(lsp.ExecuteCommandMethod, ExecuteCommandHandler.ExecuteCommand,
			WithRegistrationOptions(executeCommandOptions, advertiseExecuteCommand),
			WithClientCapability("workspace.executeCommand",
				func(c *lsp.ClientCapabilities) *lsp.ExecuteCommandCapabilities { return c.WorkspaceCapabilities().ExecuteCommand },
				ExecuteCommandCapabilityReceiver.SetExecuteCommandCapability,
				func(c *lsp.ExecuteCommandCapabilities) *bool { return c.DynamicRegistration }),
		),
	}
}

var synchronizationCapability = WithClientCapability("textDocument.synchronization",
	func(c *lsp.ClientCapabilities) *lsp.SynchronizationCapabilities { return c.TextDocumentCapabilities().Synchronization },
	SynchronizationCapabilityReceiver.SetSynchronizationCapability,
	func(c *lsp.SynchronizationCapabilities) *bool { return c.DynamicRegistration },
)

// Registration options providers

func textDocumentOptions(h any) lsp.TextDocumentRegistrationOptions {
	if p, ok := h.(TextDocumentRegistrationProvider); ok {
		return p.TextDocumentRegistrationOptions()
	}
	return lsp.TextDocumentRegistrationOptions{}
}

func changeOptions(h any) lsp.TextDocumentChangeRegistrationOptions {
	if p, ok := h.(ChangeRegistrationProvider); ok {
		return p.ChangeRegistrationOptions()
	}
	return lsp.TextDocumentChangeRegistrationOptions{
		TextDocumentRegistrationOptions: textDocumentOptions(h),
		SyncKind:                        lsp.TextDocumentSyncKindFull,
	}
}

func saveOptions(h any) lsp.TextDocumentSaveRegistrationOptions {
	if p, ok := h.(SaveRegistrationProvider); ok {
		return p.SaveRegistrationOptions()
	}
	return lsp.TextDocumentSaveRegistrationOptions{TextDocumentRegistrationOptions: textDocumentOptions(h)}
}

func completionOptions(h any) lsp.CompletionRegistrationOptions {
	if p, ok := h.(CompletionRegistrationProvider); ok {
		return p.CompletionRegistrationOptions()
	}
	return lsp.CompletionRegistrationOptions{TextDocumentRegistrationOptions: textDocumentOptions(h)}
}

func signatureHelpOptions(h any) lsp.SignatureHelpRegistrationOptions {
	if p, ok := h.(SignatureHelpRegistrationProvider); ok {
		return p.SignatureHelpRegistrationOptions()
	}
	return lsp.SignatureHelpRegistrationOptions{TextDocumentRegistrationOptions: textDocumentOptions(h)}
}

func onTypeFormattingOptions(h any) lsp.DocumentOnTypeFormattingRegistrationOptions {
	if p, ok := h.(OnTypeFormattingRegistrationProvider); ok {
		return p.OnTypeFormattingRegistrationOptions()
	}
	return lsp.DocumentOnTypeFormattingRegistrationOptions{TextDocumentRegistrationOptions: textDocumentOptions(h)}
}

func executeCommandOptions(h any) lsp.ExecuteCommandRegistrationOptions {
	if p, ok := h.(ExecuteCommandRegistrationProvider); ok {
		return p.ExecuteCommandRegistrationOptions()
	}
	return lsp.ExecuteCommandRegistrationOptions{}
}

func watchedFilesOptions(h any) lsp.DidChangeWatchedFilesRegistrationOptions {
	if p, ok := h.(WatchedFilesRegistrationProvider); ok {
		return p.WatchedFilesRegistrationOptions()
	}
	return lsp.DidChangeWatchedFilesRegistrationOptions{}
}

// Static capability advertisement. Several registrations may fold into the
// same capability; list-valued fields are merged without duplicates.

func syncOptions(caps *lsp.ServerCapabilities) *lsp.TextDocumentSyncOptions {
	if caps.TextDocumentSync == nil {
		caps.TextDocumentSync = &lsp.TextDocumentSyncOptions{}
	}
	return caps.TextDocumentSync
}

func advertiseOpenClose(caps *lsp.ServerCapabilities, _ lsp.TextDocumentRegistrationOptions) {
	syncOptions(caps).OpenClose = lsp.Bool(true)
}

// advertiseChange keeps the richest sync kind requested by any handler. The
// document store reconstructs full text from incremental edits.
func advertiseChange(caps *lsp.ServerCapabilities, o lsp.TextDocumentChangeRegistrationOptions) {
	s := syncOptions(caps)
	if s.Change == nil || *s.Change < o.SyncKind {
		kind := o.SyncKind
		s.Change = &kind
	}
}

func advertiseSave(caps *lsp.ServerCapabilities, o lsp.TextDocumentSaveRegistrationOptions) {
	s := syncOptions(caps)
	if s.Save == nil {
		s.Save = &lsp.SaveOptions{}
	}
	if lsp.BoolValue(o.IncludeText) {
		s.Save.IncludeText = lsp.Bool(true)
	}
}

func advertiseCompletion(caps *lsp.ServerCapabilities, o lsp.CompletionRegistrationOptions) {
	if caps.CompletionProvider == nil {
		caps.CompletionProvider = &lsp.CompletionOptions{}
	}
	cp := caps.CompletionProvider
	cp.TriggerCharacters = mergeUnique(cp.TriggerCharacters, o.TriggerCharacters)
	if lsp.BoolValue(o.ResolveProvider) {
		cp.ResolveProvider = lsp.Bool(true)
	}
}

func advertiseSignatureHelp(caps *lsp.ServerCapabilities, o lsp.SignatureHelpRegistrationOptions) {
	if caps.SignatureHelpProvider == nil {
		caps.SignatureHelpProvider = &lsp.SignatureHelpOptions{}
	}
	sp := caps.SignatureHelpProvider
	sp.TriggerCharacters = mergeUnique(sp.TriggerCharacters, o.TriggerCharacters)
}

func advertiseOnTypeFormatting(caps *lsp.ServerCapabilities, o lsp.DocumentOnTypeFormattingRegistrationOptions) {
	if caps.DocumentOnTypeFormattingProvider == nil {
		caps.DocumentOnTypeFormattingProvider = &lsp.DocumentOnTypeFormattingOptions{
			FirstTriggerCharacter: o.FirstTriggerCharacter,
		}
	}
	fp := caps.DocumentOnTypeFormattingProvider
	extra := o.MoreTriggerCharacter
	if o.FirstTriggerCharacter != "" && o.FirstTriggerCharacter != fp.FirstTriggerCharacter {
		extra = append([]string{o.FirstTriggerCharacter}, extra...)
	}
	fp.MoreTriggerCharacter = mergeUnique(fp.MoreTriggerCharacter, extra)
}

func advertiseExecuteCommand(caps *lsp.ServerCapabilities, o lsp.ExecuteCommandRegistrationOptions) {
	if caps.ExecuteCommandProvider == nil {
		caps.ExecuteCommandProvider = &lsp.ExecuteCommandOptions{Commands: []string{}}
	}
	caps.ExecuteCommandProvider.Commands = mergeUnique(caps.ExecuteCommandProvider.Commands, o.Commands)
}

func mergeUnique(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
