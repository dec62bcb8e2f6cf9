package lspservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/lsp-server-go/lsp"
)

var (
	// ErrInvalidParams wraps every params decoding failure.
	ErrInvalidParams = errors.New("invalid params")
	// ErrHandlerMismatch is returned when a descriptor is invoked with a
	// handler or params value of the wrong type.
	ErrHandlerMismatch = errors.New("handler does not satisfy descriptor")
)

// Kind tells whether a method expects a response.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DispatchMode is the scheduling discipline a dispatcher applies to a method.
type DispatchMode int

const (
	// Concurrent invocations may overlap with each other.
	Concurrent DispatchMode = iota
	// Ordered invocations run strictly in arrival order and never overlap
	// with any other invocation.
	Ordered
)

func (m DispatchMode) String() string {
	switch m {
	case Concurrent:
		return "concurrent"
	case Ordered:
		return "ordered"
	default:
		return fmt.Sprintf("DispatchMode(%d)", int(m))
	}
}

// Descriptor is the static metadata of one protocol method. Descriptors are
// immutable once built; construct them with NewRequestDescriptor or
// NewNotificationDescriptor.
type Descriptor struct {
	method lsp.Method
	kind   Kind
	mode   DispatchMode

	matches   func(h any) bool
	newParams func() any
	newResult func() any
	invoke    func(ctx context.Context, h any, params any) (any, error)

	options    *optionsSpec
	capability *capabilitySpec
}

type optionsSpec struct {
	provide   func(h any) any
	advertise func(caps *lsp.ServerCapabilities, options any)
}

type capabilitySpec struct {
	name    string
	dynamic func(caps *lsp.ClientCapabilities) bool
	supply  func(h any, caps *lsp.ClientCapabilities) (bool, error)
}

// DescriptorOption customizes a Descriptor under construction.
type DescriptorOption func(*Descriptor)

// WithDispatchMode overrides the default mode (Concurrent).
func WithDispatchMode(mode DispatchMode) DescriptorOption {
	return func(d *Descriptor) { d.mode = mode }
}

// WithRegistrationOptions declares the registration options type O of the
// method. provide computes the options for a handler that already satisfies
// the descriptor; advertise folds one registration's options into the static
// server capabilities and may be nil.
func WithRegistrationOptions[O any](provide func(h any) O, advertise func(caps *lsp.ServerCapabilities, options O)) DescriptorOption {
	return func(d *Descriptor) {
		spec := &optionsSpec{provide: func(h any) any { return provide(h) }}
		if advertise != nil {
			spec.advertise = func(caps *lsp.ServerCapabilities, options any) {
				if o, ok := options.(O); ok {
					advertise(caps, o)
				}
			}
		}
		d.options = spec
	}
}

// WithClientCapability declares the client capability type C of the method.
// Handlers implementing R receive the value found by extract (or a zero C)
// through set. dynamic reports the capability's dynamicRegistration flag.
//
// Descriptors sharing a capability name share one supply per handler.
func WithClientCapability[C any, R any](name string, extract func(*lsp.ClientCapabilities) *C, set func(R, *C) error, dynamic func(*C) *bool) DescriptorOption {
	return func(d *Descriptor) {
		d.capability = &capabilitySpec{
			name: name,
			dynamic: func(caps *lsp.ClientCapabilities) bool {
				if caps == nil || dynamic == nil {
					return false
				}
				c := extract(caps)
				return c != nil && lsp.BoolValue(dynamic(c))
			},
			supply: func(h any, caps *lsp.ClientCapabilities) (bool, error) {
				r, ok := h.(R)
				if !ok {
					return false, nil
				}
				var c *C
				if caps != nil {
					c = extract(caps)
				}
				if c == nil {
					c = new(C)
				}
				return true, set(r, c)
			},
		}
	}
}

// NewRequestDescriptor describes a request method served by handlers of
// interface type H with params P and result R.
func NewRequestDescriptor[H any, P any, R any](method lsp.Method, call func(h H, ctx context.Context, params *P) (R, error), opts ...DescriptorOption) *Descriptor {
	d := &Descriptor{
		method: method,
		kind:   KindRequest,
		matches: func(h any) bool {
			_, ok := h.(H)
			return ok
		},
		newParams: func() any { return new(P) },
		newResult: func() any { return new(R) },
		invoke: func(ctx context.Context, h any, params any) (any, error) {
			handler, ok := h.(H)
			if !ok {
				return nil, fmt.Errorf("%w: %s: %T", ErrHandlerMismatch, method, h)
			}
			p, ok := params.(*P)
			if !ok {
				return nil, fmt.Errorf("%w: %s: params %T", ErrHandlerMismatch, method, params)
			}
			return call(handler, ctx, p)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// NewNotificationDescriptor describes a notification method served by
// handlers of interface type H with params P.
func NewNotificationDescriptor[H any, P any](method lsp.Method, call func(h H, ctx context.Context, params *P) error, opts ...DescriptorOption) *Descriptor {
	d := &Descriptor{
		method: method,
		kind:   KindNotification,
		matches: func(h any) bool {
			_, ok := h.(H)
			return ok
		},
		newParams: func() any { return new(P) },
		invoke: func(ctx context.Context, h any, params any) (any, error) {
			handler, ok := h.(H)
			if !ok {
				return nil, fmt.Errorf("%w: %s: %T", ErrHandlerMismatch, method, h)
			}
			p, ok := params.(*P)
			if !ok {
				return nil, fmt.Errorf("%w: %s: params %T", ErrHandlerMismatch, method, params)
			}
			return nil, call(handler, ctx, p)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// rawDescriptor serves an explicit method name with a RawRequestHandler or
// RawNotificationHandler.
func rawDescriptor(method lsp.Method, h any) (*Descriptor, bool) {
	switch h.(type) {
	case RawRequestHandler:
		return NewRequestDescriptor(method, func(h RawRequestHandler, ctx context.Context, params *json.RawMessage) (any, error) {
			return h.HandleRequest(ctx, *params)
		}), true
	case RawNotificationHandler:
		return NewNotificationDescriptor(method, func(h RawNotificationHandler, ctx context.Context, params *json.RawMessage) error {
			return h.HandleNotification(ctx, *params)
		}), true
	default:
		return nil, false
	}
}

// Method returns the LSP method name.
func (d *Descriptor) Method() lsp.Method { return d.method }

// Kind reports whether the method is a request or a notification.
func (d *Descriptor) Kind() Kind { return d.kind }

// Mode returns the dispatch mode of the method.
func (d *Descriptor) Mode() DispatchMode { return d.mode }

// IsNotification reports whether the method expects no response.
func (d *Descriptor) IsNotification() bool { return d.kind == KindNotification }

// HasRegistrationOptions reports whether registrations for the method carry
// options and may be registered dynamically.
func (d *Descriptor) HasRegistrationOptions() bool { return d.options != nil }

// ClientCapability returns the name of the client capability the method
// consumes, or "".
func (d *Descriptor) ClientCapability() string {
	if d.capability == nil {
		return ""
	}
	return d.capability.name
}

// Satisfies reports whether h implements the handler interface of d.
func (d *Descriptor) Satisfies(h any) bool { return h != nil && d.matches(h) }

// SupportsDynamicRegistration reports whether the client advertised
// dynamicRegistration for the capability behind d.
func (d *Descriptor) SupportsDynamicRegistration(caps *lsp.ClientCapabilities) bool {
	if d.options == nil || d.capability == nil {
		return false
	}
	return d.capability.dynamic(caps)
}

// Decode decodes raw params into a fresh params value. Empty or null params
// decode to the zero value.
func (d *Descriptor) Decode(raw json.RawMessage) (any, error) {
	p := d.newParams()
	if rm, ok := p.(*json.RawMessage); ok {
		*rm = append(json.RawMessage(nil), raw...)
		return p, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidParams, d.method, err)
	}
	return p, nil
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.method, d.kind, d.mode)
}
