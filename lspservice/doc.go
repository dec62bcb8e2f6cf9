// Package lspservice holds the method catalog and handler registry of an LSP
// server.
//
// A Descriptor correlates one protocol method with the Go interface a handler
// must implement to serve it, the dispatch mode of the method, and optionally
// the registration options and client capability types attached to it. A
// Catalog is an immutable set of descriptors keyed by method name;
// DefaultCatalog covers the methods modeled in package lsp.
//
// A Registry binds handler values to descriptors. Adding a handler fans out
// over every descriptor it satisfies, so a single text document sync handler
// yields four registrations (didOpen, didChange, didClose, didSave):
//
//	reg := lspservice.NewRegistry()
//	if _, err := reg.Add(mySyncHandler, myHoverHandler); err != nil {
//	    return err
//	}
//	for _, r := range reg.Resolve(lsp.HoverMethod, lspservice.ForDocument(uri, "go")) {
//	    ...
//	}
//
// Registrations are keyed by method plus a disambiguator derived from their
// registration options (document selector first). Adding a registration whose
// key is already present replaces the previous one in place.
package lspservice
