// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// LISTENER
// =============================================================================

// Listener observes the lifecycle of exchanges.
//
// ExchangeStarting is the only handler that can influence the exchange:
// returning an error matching ErrExchangeAborted vetoes it, any other error
// fails it. Panics in the other handlers are recovered and logged.
type Listener interface {
	ExchangeStarting(ev *Starting) error
	ExchangeStarted(ev *Started)
	ResponseArriving(ev *ResponseArriving)
	ResponseArrived(ev *ResponseArrived)
	ExchangeFailed(ev *Failed)
	ExchangeCancelled(ev *Cancelled)
}

// NopListener implements Listener with no-ops. Embed it to implement only
// some of the handlers.
type NopListener struct{}

func (NopListener) ExchangeStarting(*Starting) error   { return nil }
func (NopListener) ExchangeStarted(*Started)           {}
func (NopListener) ResponseArriving(*ResponseArriving) {}
func (NopListener) ResponseArrived(*ResponseArrived)   {}
func (NopListener) ExchangeFailed(*Failed)             {}
func (NopListener) ExchangeCancelled(*Cancelled)       {}

// ListenerFuncs adapts optional callbacks to a Listener.
type ListenerFuncs struct {
	OnStarting  func(*Starting) error
	OnStarted   func(*Started)
	OnArriving  func(*ResponseArriving)
	OnArrived   func(*ResponseArrived)
	OnFailed    func(*Failed)
	OnCancelled func(*Cancelled)
}

func (f ListenerFuncs) ExchangeStarting(ev *Starting) error {
	if f.OnStarting != nil {
		return f.OnStarting(ev)
	}
	return nil
}

func (f ListenerFuncs) ExchangeStarted(ev *Started) {
	if f.OnStarted != nil {
		f.OnStarted(ev)
	}
}

func (f ListenerFuncs) ResponseArriving(ev *ResponseArriving) {
	if f.OnArriving != nil {
		f.OnArriving(ev)
	}
}

func (f ListenerFuncs) ResponseArrived(ev *ResponseArrived) {
	if f.OnArrived != nil {
		f.OnArrived(ev)
	}
}

func (f ListenerFuncs) ExchangeFailed(ev *Failed) {
	if f.OnFailed != nil {
		f.OnFailed(ev)
	}
}

func (f ListenerFuncs) ExchangeCancelled(ev *Cancelled) {
	if f.OnCancelled != nil {
		f.OnCancelled(ev)
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

type registration struct {
	id       uint64
	listener Listener
}

// Registry holds listeners in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	live    map[uint64]bool
	nextID  uint64
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger discards panic reports.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{live: make(map[uint64]bool), logger: logger}
}

// Register appends l and returns a function that removes this registration.
func (r *Registry) Register(l Listener) (unregister func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registration{id: id, listener: l})
	r.live[id] = true
	r.mu.Unlock()

	return func() { r.remove(func(reg registration) bool { return reg.id == id }) }
}

// Unregister removes the first registration of l and reports whether one was
// found. Listeners of non-comparable types can only be removed with the
// function returned by Register.
func (r *Registry) Unregister(l Listener) bool {
	return r.remove(func(reg registration) bool { return sameListener(reg.listener, l) })
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Fire returns a proxy Listener for one exchange. The proxy delivers to the
// listeners registered when Fire was called, in registration order, skipping
// any that have been unregistered since.
func (r *Registry) Fire() Listener {
	r.mu.RLock()
	snapshot := make([]registration, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()
	return &fanout{registry: r, targets: snapshot}
}

func (r *Registry) remove(match func(registration) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.entries {
		if match(reg) {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			delete(r.live, reg.id)
			return true
		}
	}
	return false
}

func (r *Registry) isLive(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[id]
}

func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

// =============================================================================
// FAN-OUT PROXY
// =============================================================================

type fanout struct {
	registry *Registry
	targets  []registration
}

// ExchangeStarting offers the event to every listener, even after one of
// them refused it, and joins the refusals.
func (f *fanout) ExchangeStarting(ev *Starting) error {
	var errs []error
	for _, reg := range f.targets {
		if !f.registry.isLive(reg.id) {
			continue
		}
		if err := f.starting(reg.listener, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) starting(l Listener, ev *Starting) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f.registry.logger.Error("listener panicked while starting exchange",
				zap.String("exchange_id", ev.ID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("%w: listener panicked: %v", ErrExchangeAborted, r)
		}
	}()
	return l.ExchangeStarting(ev)
}

func (f *fanout) ExchangeStarted(ev *Started) {
	f.each(ev, func(l Listener) { l.ExchangeStarted(ev) })
}

func (f *fanout) ResponseArriving(ev *ResponseArriving) {
	f.each(ev, func(l Listener) { l.ResponseArriving(ev) })
}

func (f *fanout) ResponseArrived(ev *ResponseArrived) {
	f.each(ev, func(l Listener) { l.ResponseArrived(ev) })
}

func (f *fanout) ExchangeFailed(ev *Failed) {
	f.each(ev, func(l Listener) { l.ExchangeFailed(ev) })
}

func (f *fanout) ExchangeCancelled(ev *Cancelled) {
	f.each(ev, func(l Listener) { l.ExchangeCancelled(ev) })
}

func (f *fanout) each(ev Event, deliver func(Listener)) {
	for _, reg := range f.targets {
		if !f.registry.isLive(reg.id) {
			continue
		}
		f.safely(ev, reg.listener, deliver)
	}
}

func (f *fanout) safely(ev Event, l Listener, deliver func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			f.registry.logger.Error("listener panicked",
				zap.String("exchange_id", ev.ExchangeID()),
				zap.Stringer("event", ev.Kind()),
				zap.Any("panic", r),
			)
		}
	}()
	deliver(l)
}
