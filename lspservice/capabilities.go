package lspservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/lsp-server-go/lsp"
	"golang.org/x/sync/errgroup"
)

// CapabilityError reports a handler that rejected its client capability.
// The handler's registrations stay live.
type CapabilityError struct {
	Capability     string
	Method         lsp.Method
	RegistrationID string
	Err            error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s (%s, registration %s): %v", e.Capability, e.Method, e.RegistrationID, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// CapabilityErrors flattens the error returned by SupplyCapabilities.
func CapabilityErrors(err error) []*CapabilityError {
	if err == nil {
		return nil
	}
	var out []*CapabilityError
	var walk func(error)
	walk = func(err error) {
		if ce, ok := err.(*CapabilityError); ok {
			out = append(out, ce)
			return
		}
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range multi.Unwrap() {
				walk(e)
			}
		}
	}
	walk(err)
	return out
}

type suppliedKey struct {
	handler    any
	regID      string
	capability string
}

type pendingSupply struct {
	key  suppliedKey
	reg  *Registration
	spec *capabilitySpec
}

// SupplyCapabilities hands the client capabilities to every live handler
// that consumes them. Each (handler, capability) pair is supplied once for
// the lifetime of the registry, however many descriptors the handler
// satisfies and however often SupplyCapabilities runs. Handlers added later
// are supplied as part of Add.
//
// Supplies to different handlers run concurrently; the receivers of one
// handler are called one at a time.
//
// Failures do not stop other supplies. They are returned joined; see
// CapabilityErrors. If ctx ends part way, the remaining supplies are left
// for a later call and ctx.Err() is returned as is.
func (r *Registry) SupplyCapabilities(ctx context.Context, caps *lsp.ClientCapabilities) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if caps == nil {
		caps = &lsp.ClientCapabilities{}
	}
	r.capMu.Lock()
	r.clientCaps = caps
	r.capMu.Unlock()

	return r.runSupplies(ctx, caps, r.claimSupplies(r.Registrations()))
}

// ClientCapabilities returns the negotiated client capabilities, or nil
// before negotiation.
func (r *Registry) ClientCapabilities() *lsp.ClientCapabilities {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	return r.clientCaps
}

func (r *Registry) claimSupplies(regs []*Registration) []pendingSupply {
	r.capMu.Lock()
	defer r.capMu.Unlock()

	var out []pendingSupply
	for _, reg := range regs {
		spec := reg.descriptor.capability
		if spec == nil {
			continue
		}
		key := suppliedKey{capability: spec.name}
		if comparableHandler(reg.handler) {
			key.handler = reg.handler
		} else {
			key.regID = reg.id
		}
		if _, done := r.supplied[key]; done {
			continue
		}
		r.supplied[key] = struct{}{}
		out = append(out, pendingSupply{key: key, reg: reg, spec: spec})
	}
	return out
}

func (r *Registry) releaseSupplies(pending []pendingSupply) {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	for _, p := range pending {
		delete(r.supplied, p.key)
	}
}

// byHandler groups pending supplies per handler value, keeping order.
func byHandler(pending []pendingSupply) [][]int {
	index := make(map[suppliedKey]int)
	var groups [][]int
	for i, p := range pending {
		k := suppliedKey{handler: p.key.handler, regID: p.key.regID}
		g, ok := index[k]
		if !ok {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (r *Registry) runSupplies(ctx context.Context, caps *lsp.ClientCapabilities, pending []pendingSupply) error {
	if len(pending) == 0 {
		return nil
	}
	results := make([]error, len(pending))
	skipped := make([]bool, len(pending))
	var g errgroup.Group
	for _, group := range byHandler(pending) {
		g.Go(func() error {
			for _, i := range group {
				if ctx.Err() != nil {
					skipped[i] = true
					continue
				}
				p := pending[i]
				if _, err := p.spec.supply(p.reg.handler, caps); err != nil {
					results[i] = &CapabilityError{Capability: p.spec.name, Method: p.reg.Method(), RegistrationID: p.reg.id, Err: err}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var released []pendingSupply
	for i, skip := range skipped {
		if skip {
			released = append(released, pending[i])
		}
	}
	if len(released) > 0 {
		r.releaseSupplies(released)
		return ctx.Err()
	}
	return errors.Join(results...)
}

// supplyLate runs capability supply for registrations added after
// negotiation. It reports whether negotiation had happened.
func (r *Registry) supplyLate(regs []*Registration) bool {
	caps := r.ClientCapabilities()
	if caps == nil {
		return false
	}
	err := r.runSupplies(context.Background(), caps, r.claimSupplies(regs))
	for _, ce := range CapabilityErrors(err) {
		r.log.Warn("registry.capability.supply_fail",
			slog.String("capability", ce.Capability),
			slog.String("method", string(ce.Method)),
			slog.String("registration_id", ce.RegistrationID),
			slog.String("err", ce.Err.Error()),
		)
	}
	return true
}

// ServerCapabilities folds every live registration into the static server
// capabilities advertised in the initialize result.
func (r *Registry) ServerCapabilities() lsp.ServerCapabilities {
	return r.advertise(func(*Registration) bool { return true })
}

// StaticCapabilities is ServerCapabilities minus the registrations the
// client will receive through dynamic registration.
func (r *Registry) StaticCapabilities(caps *lsp.ClientCapabilities) lsp.ServerCapabilities {
	return r.advertise(func(reg *Registration) bool {
		return !reg.descriptor.SupportsDynamicRegistration(caps)
	})
}

func (r *Registry) advertise(include func(*Registration) bool) lsp.ServerCapabilities {
	var out lsp.ServerCapabilities
	for _, reg := range r.Registrations() {
		d := reg.descriptor
		if d.options == nil || d.options.advertise == nil || !include(reg) {
			continue
		}
		options := reg.options
		if options == nil {
			options = d.options.provide(reg.handler)
		}
		d.options.advertise(&out, options)
	}
	return out
}

// DynamicRegistrations returns the live registrations that carry options
// and whose capability the client registers dynamically.
func (r *Registry) DynamicRegistrations(caps *lsp.ClientCapabilities) []*Registration {
	var out []*Registration
	for _, reg := range r.Registrations() {
		if reg.options != nil && reg.descriptor.SupportsDynamicRegistration(caps) {
			out = append(out, reg)
		}
	}
	return out
}

// RegistrationParams builds a client/registerCapability payload.
func RegistrationParams(regs []*Registration) lsp.RegistrationParams {
	out := lsp.RegistrationParams{Registrations: make([]lsp.Registration, 0, len(regs))}
	for _, reg := range regs {
		out.Registrations = append(out.Registrations, reg.Wire())
	}
	return out
}

// UnregistrationParams builds a client/unregisterCapability payload.
func UnregistrationParams(regs []*Registration) lsp.UnregistrationParams {
	out := lsp.UnregistrationParams{Unregisterations: make([]lsp.Unregistration, 0, len(regs))}
	for _, reg := range regs {
		out.Unregisterations = append(out.Unregisterations, lsp.Unregistration{ID: reg.id, Method: reg.descriptor.method})
	}
	return out
}
