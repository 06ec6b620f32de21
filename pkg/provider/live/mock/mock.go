// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and obtain a controllable Handle. Use
// Handle to inspect frames sent by the caller and to drive inbound events.
//
// Example:
//
//	p := &mock.Provider{}
//	h, _ := p.Connect(ctx, cfg, callbacks)
//	p.Handle().Deliver(live.Message{Audio: blobs})
//	p.Handle().RemoteClose(errors.New("server went away"))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dost/pkg/audio"
	"github.com/MrWong99/dost/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectDelay makes Connect wait before completing, honouring ctx.
	ConnectDelay time.Duration

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	handles []*Handle
}

var _ live.Provider = (*Provider)(nil)

// Connect records the call, calls OnOpen and returns a new Handle.
func (p *Provider) Connect(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Handle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	err, delay := p.ConnectErr, p.ConnectDelay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	h := &Handle{cb: cb}
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return h, nil
}

// Handle returns the most recently created handle, or nil.
func (p *Provider) Handle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	return p.handles[len(p.handles)-1]
}

// OpenHandles returns how many handles have not been closed.
func (p *Provider) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if !h.IsClosed() {
			n++
		}
	}
	return n
}

// Handle is a mock implementation of live.Handle.
type Handle struct {
	cb live.Callbacks

	mu        sync.Mutex
	sent      []audio.Blob
	closed    bool
	fired     bool

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

var _ live.Handle = (*Handle)(nil)

// Send records the blob and returns SendErr.
func (h *Handle) Send(blob audio.Blob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SendErr != nil {
		return h.SendErr
	}
	h.sent = append(h.sent, blob)
	return nil
}

// SetSendErr changes the error returned by Send.
func (h *Handle) SetSendErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.SendErr = err
}

// Sent returns a copy of every blob passed to Send.
func (h *Handle) Sent() []audio.Blob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]audio.Blob(nil), h.sent...)
}

// Deliver invokes OnMessage synchronously with msg.
func (h *Handle) Deliver(msg live.Message) {
	if h.cb.OnMessage != nil {
		h.cb.OnMessage(msg)
	}
}

// RemoteClose simulates the agent ending the connection with err.
func (h *Handle) RemoteClose(err error) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.fireClose(err)
}

// Close records the call, marks the handle closed and invokes OnClose(nil)
// the first time, like a real connection acknowledging a local close.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.CloseCallCount++
	h.closed = true
	h.mu.Unlock()
	h.fireClose(nil)
	return nil
}

// IsClosed reports whether Close or RemoteClose has been called.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fireClose invokes OnClose at most once. The callback may re-enter Close.
func (h *Handle) fireClose(err error) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.mu.Unlock()
	if h.cb.OnClose != nil {
		h.cb.OnClose(err)
	}
}
