package lspservice

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/google/uuid"
)

var (
	// ErrNilHandler is returned when a nil handler is added.
	ErrNilHandler = errors.New("nil handler")
	// ErrUnsupportedHandler is returned when a handler satisfies no
	// descriptor of the catalog.
	ErrUnsupportedHandler = errors.New("handler satisfies no method descriptor")
)

// Registry is the dispatch table: the live set of handler registrations,
// kept in insertion order. It is safe for concurrent use.
type Registry struct {
	catalog *Catalog
	newID   func() string
	log     *slog.Logger

	mu   sync.RWMutex
	regs []*Registration

	capMu      sync.Mutex
	clientCaps *lsp.ClientCapabilities
	supplied   map[suppliedKey]struct{}

	changes notifier
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCatalog replaces DefaultCatalog.
func WithCatalog(c *Catalog) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.catalog = c
		}
	}
}

// WithIDGenerator overrides the registration id source (random UUIDs by
// default).
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithLogger sets the logger used to report capability failures of handlers
// added after negotiation.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		catalog:  DefaultCatalog(),
		newID:    uuid.NewString,
		log:      slog.Default(),
		supplied: make(map[suppliedKey]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Catalog returns the catalog handlers are matched against.
func (r *Registry) Catalog() *Catalog { return r.catalog }

// Lookup returns the catalog descriptor of method.
func (r *Registry) Lookup(method lsp.Method) (*Descriptor, bool) { return r.catalog.Lookup(method) }

// Add registers each handler under every descriptor it satisfies and returns
// the registrations created. A registration whose key is already present
// replaces the previous one in place.
//
// Add fails without registering anything if a handler is nil or satisfies no
// descriptor.
func (r *Registry) Add(handlers ...any) ([]*Registration, error) {
	var created []*Registration
	for _, h := range handlers {
		if h == nil {
			return nil, ErrNilHandler
		}
		descs := r.catalog.satisfiedBy(h)
		if len(descs) == 0 {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedHandler, h)
		}
		for _, d := range descs {
			created = append(created, newRegistration(r.newID(), d, h, true))
		}
	}
	r.upsert(created)
	return created, nil
}

// AddMethod registers handler under an explicit method name. The catalog
// descriptor is used when handler satisfies it; otherwise handler must be a
// RawRequestHandler or RawNotificationHandler. Registrations made this way
// carry no options, so a second AddMethod for the same method replaces the
// first.
func (r *Registry) AddMethod(method lsp.Method, handler any) (*Registration, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	d, ok := r.catalog.Lookup(method)
	if !ok || !d.Satisfies(handler) {
		if d, ok = rawDescriptor(method, handler); !ok {
			return nil, fmt.Errorf("%w: %s: %T", ErrUnsupportedHandler, method, handler)
		}
	}
	reg := newRegistration(r.newID(), d, handler, false)
	r.upsert([]*Registration{reg})
	return reg, nil
}

func (r *Registry) upsert(regs []*Registration) {
	if len(regs) == 0 {
		return
	}
	// Supply before the registrations become resolvable.
	negotiated := r.supplyLate(regs)

	r.mu.Lock()
	for _, reg := range regs {
		idx := slices.IndexFunc(r.regs, func(existing *Registration) bool { return existing.key == reg.key })
		if idx >= 0 {
			r.regs[idx] = reg
		} else {
			r.regs = append(r.regs, reg)
		}
	}
	r.mu.Unlock()

	if !negotiated {
		// SupplyCapabilities may have run between the check and the insert.
		r.supplyLate(regs)
	}
	r.changes.notify()
}

// Remove deletes every registration bound to handler and reports how many
// were removed. Handlers of non-comparable types (such as function adapters)
// are never matched; use RemoveMethod or RemoveID for those.
func (r *Registry) Remove(handler any) int {
	if !comparableHandler(handler) {
		return 0
	}
	return r.removeWhere(func(reg *Registration) bool { return sameHandler(reg.handler, handler) })
}

// RemoveMethod deletes the registrations of method whose selector is
// equivalent to selector. A nil selector also matches registrations that
// carry no options.
func (r *Registry) RemoveMethod(method lsp.Method, selector lsp.DocumentSelector) int {
	key := selector.Key()
	return r.removeWhere(func(reg *Registration) bool {
		return reg.key.method == method && reg.selector.Key() == key
	})
}

// RemoveID deletes the registration with the given id.
func (r *Registry) RemoveID(id string) bool {
	return r.removeWhere(func(reg *Registration) bool { return reg.id == id }) > 0
}

func (r *Registry) removeWhere(pred func(*Registration) bool) int {
	r.mu.Lock()
	before := len(r.regs)
	r.regs = slices.DeleteFunc(r.regs, pred)
	removed := before - len(r.regs)
	r.mu.Unlock()

	if removed > 0 {
		r.changes.notify()
	}
	return removed
}

type resolveConfig struct {
	doc *lsp.Document
}

// ResolveOption narrows Resolve.
type ResolveOption func(*resolveConfig)

// ForDocument keeps only registrations whose selector matches the document.
// languageID may be empty when unknown.
func ForDocument(uri lsp.DocumentURI, languageID string) ResolveOption {
	return func(c *resolveConfig) {
		c.doc = &lsp.Document{URI: uri, LanguageID: languageID}
	}
}

// Resolve returns a snapshot of the live registrations for method, in
// insertion order. A miss yields an empty slice.
func (r *Registry) Resolve(method lsp.Method, opts ...ResolveOption) []*Registration {
	var cfg resolveConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Registration{}
	for _, reg := range r.regs {
		if reg.key.method != method {
			continue
		}
		if cfg.doc != nil && !reg.Matches(*cfg.doc) {
			continue
		}
		out = append(out, reg)
	}
	return out
}

// Count returns the number of live registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

// Registrations returns a snapshot of every live registration.
func (r *Registry) Registrations() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.regs)
}

// Subscriber returns a channel signalled after every change to the live set.
// Signals coalesce; receivers should re-read Registrations.
func (r *Registry) Subscriber() <-chan struct{} { return r.changes.subscribe() }

// Close releases subscribers. The registry stays usable.
func (r *Registry) Close() { r.changes.close() }
