// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type orderListener struct {
	NopListener
	name string
	log  *[]string
}

func (o *orderListener) ExchangeStarted(*Started) { *o.log = append(*o.log, o.name) }

type panicListener struct{ NopListener }

func (panicListener) ExchangeStarted(*Started)           { panic("boom") }
func (panicListener) ExchangeStarting(*Starting) error   { panic("refuse") }
func (panicListener) ResponseArriving(*ResponseArriving) { panic("again") }

func testStarting() *Starting {
	return &Starting{ID: "ex-1"}
}

func TestRegistryOrder(t *testing.T) {
	var log []string
	r := NewRegistry(nil)
	r.Register(&orderListener{name: "a", log: &log})
	r.Register(&orderListener{name: "b", log: &log})
	r.Register(&orderListener{name: "c", log: &log})

	r.Fire().ExchangeStarted(testStarting().Started(nil))
	assert.Equal(t, []string{"a", "b", "c"}, log)
}

func TestRegistryUnregister(t *testing.T) {
	var log []string
	r := NewRegistry(nil)
	a := &orderListener{name: "a", log: &log}
	b := &orderListener{name: "b", log: &log}
	r.Register(a)
	r.Register(b)

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	assert.Equal(t, 1, r.Len())

	r.Fire().ExchangeStarted(testStarting().Started(nil))
	assert.Equal(t, []string{"b"}, log)
}

func TestRegistryUnregisterFunc(t *testing.T) {
	calls := 0
	r := NewRegistry(nil)
	l := ListenerFuncs{OnStarted: func(*Started) { calls++ }}
	unregister := r.Register(l)

	assert.False(t, r.Unregister(l), "func-valued listeners are not comparable")
	unregister()
	assert.Equal(t, 0, r.Len())

	r.Fire().ExchangeStarted(testStarting().Started(nil))
	assert.Equal(t, 0, calls)
}

func TestRegistryFireSnapshot(t *testing.T) {
	var log []string
	r := NewRegistry(nil)
	a := &orderListener{name: "a", log: &log}
	r.Register(a)

	proxy := r.Fire()
	r.Register(&orderListener{name: "late", log: &log})
	proxy.ExchangeStarted(testStarting().Started(nil))
	assert.Equal(t, []string{"a"}, log, "late listeners join the next exchange")

	r.Unregister(a)
	proxy.ExchangeStarted(testStarting().Started(nil))
	assert.Equal(t, []string{"a"}, log, "unregistered listeners stop receiving")
}

func TestRegistryIsolatesPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var log []string
	r := NewRegistry(zap.New(core))
	r.Register(panicListener{})
	r.Register(&orderListener{name: "after", log: &log})

	require.NotPanics(t, func() {
		r.Fire().ExchangeStarted(testStarting().Started(nil))
		r.Fire().ResponseArriving(testStarting().Arriving("x", "x"))
	})
	assert.Equal(t, []string{"after"}, log)
	assert.Equal(t, 2, logs.FilterMessage("listener panicked").Len())
}

func TestStartingPanicIsVeto(t *testing.T) {
	r := NewRegistry(nil)
	reached := false
	r.Register(panicListener{})
	r.Register(ListenerFuncs{OnStarting: func(*Starting) error { reached = true; return nil }})

	err := r.Fire().ExchangeStarting(testStarting())
	require.Error(t, err)
	assert.True(t, IsVeto(err))
	assert.True(t, reached, "later listeners still see Starting")
}

func TestStartingErrorsAreJoined(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")
	r.Register(ListenerFuncs{OnStarting: func(*Starting) error { return ErrExchangeAborted }})
	r.Register(ListenerFuncs{OnStarting: func(*Starting) error { return boom }})

	err := r.Fire().ExchangeStarting(testStarting())
	assert.ErrorIs(t, err, ErrExchangeAborted)
	assert.ErrorIs(t, err, boom)
}

func TestStartingMessageIsMutable(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(ListenerFuncs{OnStarting: func(ev *Starting) error {
		ev.Message.Content += " please"
		return nil
	}})
	msg := Compose(nil, "hi", nil)
	ev := &Starting{ID: "ex", Message: &msg}

	require.NoError(t, r.Fire().ExchangeStarting(ev))
	assert.Equal(t, "hi please", msg.Content)
	assert.Equal(t, "hi please", ev.Cancelled("").UserMessage().Content)
}
