package lspservice

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/ggoodman/lsp-server-go/lsp"
)

// Registration binds one handler to one descriptor. Registrations are
// immutable; replacing one swaps the whole value in the registry.
type Registration struct {
	id         string
	descriptor *Descriptor
	handler    any
	options    any
	selector   lsp.DocumentSelector
	key        registrationKey
}

// registrationKey identifies the slot a registration occupies. The
// disambiguator is empty for descriptors without registration options.
type registrationKey struct {
	method        lsp.Method
	disambiguator string
}

func newRegistration(id string, d *Descriptor, h any, withOptions bool) *Registration {
	r := &Registration{
		id:         id,
		descriptor: d,
		handler:    h,
		key:        registrationKey{method: d.method},
	}
	if withOptions && d.options != nil {
		r.options = d.options.provide(h)
		if so, ok := r.options.(lsp.DocumentSelectorOptions); ok {
			r.selector = so.GetDocumentSelector()
		}
		r.key.disambiguator = disambiguator(r.selector, r.options)
	}
	return r
}

// disambiguator is the selector key followed by the canonical encoding of the
// remaining option fields. Options that differ only in selector filter order
// collapse; options that differ in any other field coexist.
func disambiguator(sel lsp.DocumentSelector, options any) string {
	b, err := json.Marshal(options)
	if err != nil {
		return sel.Key()
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return sel.Key() + "\x00" + string(b)
	}
	delete(fields, "documentSelector")
	// map keys marshal sorted
	rest, err := json.Marshal(fields)
	if err != nil {
		return sel.Key() + "\x00" + string(b)
	}
	return sel.Key() + "\x00" + string(rest)
}

// ID returns the registration id, also used on the wire.
func (r *Registration) ID() string { return r.id }

// Method returns the method the registration serves.
func (r *Registration) Method() lsp.Method { return r.descriptor.method }

// Descriptor returns the descriptor the handler was bound through.
func (r *Registration) Descriptor() *Descriptor { return r.descriptor }

// Handler returns the handler value.
func (r *Registration) Handler() any { return r.handler }

// Selector returns the document selector, nil when the registration applies
// to every document.
func (r *Registration) Selector() lsp.DocumentSelector { return r.selector }

// Options returns the registration options value, or nil when the descriptor
// declares none.
func (r *Registration) Options() any { return r.options }

// Matches reports whether the registration applies to doc.
func (r *Registration) Matches(doc lsp.Document) bool { return r.selector.Matches(doc) }

// Invoke calls the handler with params previously produced by
// Descriptor.Decode.
func (r *Registration) Invoke(ctx context.Context, params any) (any, error) {
	return r.descriptor.invoke(ctx, r.handler, params)
}

// Wire returns the client/registerCapability entry for r.
func (r *Registration) Wire() lsp.Registration {
	return lsp.Registration{ID: r.id, Method: r.descriptor.method, RegisterOptions: r.options}
}

func (r *Registration) String() string {
	return string(r.descriptor.method) + " " + r.selector.String()
}

// sameHandler compares handler identity without panicking on non-comparable
// dynamic types.
func sameHandler(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func comparableHandler(h any) bool {
	return h != nil && reflect.TypeOf(h).Comparable()
}
