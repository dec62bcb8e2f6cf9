// Package outbound correlates server-initiated requests, such as
// client/registerCapability, with the client's responses.
package outbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/lsp-server-go/internal/jsonrpc"
	"github.com/ggoodman/lsp-server-go/lsp"
)

// Transport writes server-initiated messages to the client.
type Transport interface {
	// SendRequest writes req. The dispatcher has already registered the id, so
	// a response racing the write is not lost.
	SendRequest(ctx context.Context, req *jsonrpc.Request) error
	// SendNotification writes a notification.
	SendNotification(ctx context.Context, req *jsonrpc.Request) error
}

var (
	// ErrDispatcherClosed indicates the dispatcher is closed.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type pendingCall struct {
	respCh chan *jsonrpc.Response
	errCh  chan error
}

// Dispatcher issues requests to the client and routes responses back to the
// waiting caller. It is transport-agnostic.
type Dispatcher struct {
	t Transport

	mu      sync.Mutex
	pending map[string]*pendingCall // id.Key() -> call

	nextID atomic.Int64

	closed   atomic.Bool
	closeErr error
}

// New constructs a Dispatcher using the provided transport.
func New(t Transport) *Dispatcher {
	return &Dispatcher{t: t, pending: make(map[string]*pendingCall)}
}

func (d *Dispatcher) closedErr() error {
	if d.closeErr != nil {
		return d.closeErr
	}
	return ErrDispatcherClosed
}

// Call sends a request and waits for the response or for ctx to end. When
// ctx ends first, the client is sent $/cancelRequest. A response carrying an
// error object is returned as is; use Result to turn it into an error.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if d.closed.Load() {
		return nil, d.closedErr()
	}

	id := jsonrpc.NewRequestID(d.nextID.Add(1))
	key := id.Key()

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{respCh: make(chan *jsonrpc.Response, 1), errCh: make(chan error, 1)}
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return nil, d.closedErr()
	}
	d.pending[key] = pc
	d.mu.Unlock()

	if err := d.t.SendRequest(ctx, req); err != nil {
		d.forget(key)
		return nil, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case err := <-pc.errCh:
		return nil, err
	case <-ctx.Done():
		d.forget(key)
		if n, err := jsonrpc.NewNotification(string(lsp.CancelRequestMethod), cancelParams(id)); err == nil {
			_ = d.t.SendNotification(context.WithoutCancel(ctx), n)
		}
		return nil, ctx.Err()
	}
}

// Notify sends a notification to the client.
func (d *Dispatcher) Notify(ctx context.Context, method string, params any) error {
	if d.closed.Load() {
		return d.closedErr()
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return d.t.SendNotification(ctx, n)
}

// Result returns resp's error object as an error, if any.
func Result(resp *jsonrpc.Response) error {
	if resp != nil && resp.Error != nil {
		return resp.Error
	}
	return nil
}

func cancelParams(id *jsonrpc.RequestID) lsp.CancelParams {
	raw, _ := id.MarshalJSON()
	return lsp.CancelParams{ID: raw}
}

func (d *Dispatcher) forget(key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

// OnResponse delivers an incoming response to a waiting call and reports
// whether one was waiting. Unmatched responses are ignored.
func (d *Dispatcher) OnResponse(resp *jsonrpc.Response) bool {
	if resp == nil || resp.ID.IsNil() {
		return false
	}
	key := resp.ID.Key()
	d.mu.Lock()
	pc, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		pc.respCh <- resp
	}
	return ok
}

// Pending returns the number of calls awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close fails all pending calls with err and prevents new ones.
func (d *Dispatcher) Close(err error) {
	if err == nil {
		err = ErrDispatcherClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return
	}
	d.closeErr = err
	d.closed.Store(true)
	for key, pc := range d.pending {
		delete(d.pending, key)
		pc.errCh <- err
	}
}
