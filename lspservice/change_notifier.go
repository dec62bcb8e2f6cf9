package lspservice

import "sync"

// notifier fans change signals out to subscribers. Sends never block: each
// subscriber channel holds one pending signal and further signals coalesce.
type notifier struct {
	mu     sync.RWMutex
	subs   []chan struct{}
	closed bool
}

func (n *notifier) notify() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) subscribe() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{}, 1)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
