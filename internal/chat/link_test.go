// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

func newTestLink(t *testing.T, tr *fakeTransport, opts ...DispatcherOption) (*Link, *recorder) {
	t.Helper()
	conv := NewConversation(WithModel("test-model"), WithSystemPrompt("be brief"))
	link := NewLink(conv, inputctx.NewStore(), NewDispatcher(tr, opts...))
	rec := newRecorder()
	link.RegisterListener(rec)
	t.Cleanup(link.Close)
	return link, rec
}

func TestSubmitHappyPath(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("Hel", "lo")}
	link, rec := newTestLink(t, tr)
	java := text.NewCodeFragment("int x=1;", "java", "A.java")
	link.InputContext().Add("pinned", text.NewTextFragment("ctx"))

	h := link.Submit("Explain this", []text.TextContent{java}, nil)
	require.NotNil(t, h)
	rec.wait(t)

	state, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)

	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindResponseArriving, KindResponseArriving, KindResponseArrived}, rec.Kinds())
	assert.Equal(t, []string{"Hel", "Hello"}, rec.Partials())
	assert.Equal(t, "Hello", rec.last().(*ResponseArrived).Response)

	reqs := tr.sent()
	require.Len(t, reqs, 1)
	assert.Equal(t, "test-model", reqs[0].Config.Model)
	assert.Equal(t, []transport.Message{
		transport.NewSystemMessage("be brief"),
		transport.NewUserMessage("Explain this\n\n```\nctx\n```\n\n```java\nint x=1;\n```"),
	}, reqs[0].Messages)

	assert.True(t, link.InputContext().IsEmpty(), "pinned context is consumed")
	assert.Len(t, link.Conversation().LastPostedFragments(), 2)
	assert.Nil(t, link.Conversation().Pending())
	assert.Equal(t, int32(1), tr.closed.Load(), "stream closed")

	history := link.Conversation().History()
	require.Len(t, history, 2)
	assert.Equal(t, transport.RoleUser, history[0].Role)
	assert.Equal(t, transport.NewAssistantMessage("Hello"), history[1])
}

func TestSubmitHistoryIsSentNextTime(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("one")}
	link, rec := newTestLink(t, tr)

	link.Submit("first", nil, nil)
	rec.wait(t)
	link.Close()

	rec2 := newRecorder()
	link.RegisterListener(rec2)
	link.Submit("second", nil, nil)
	rec2.wait(t)

	reqs := tr.sent()
	require.Len(t, reqs, 2)
	assert.Equal(t, []transport.Message{
		transport.NewSystemMessage("be brief"),
		transport.NewUserMessage("first"),
		transport.NewAssistantMessage("one"),
		transport.NewUserMessage("second"),
	}, reqs[1].Messages)
}

func TestSubmitEmptyDoesNothing(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	link.InputContext().Add("unresolved", nil)

	assert.Nil(t, link.Submit("   ", nil, nil))
	assert.Empty(t, rec.Kinds())
	assert.Empty(t, tr.sent())
	assert.Equal(t, 1, link.InputContext().Len(), "no side effects")
}

func TestSubmitVeto(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	rec.veto = ErrExchangeAborted
	link.Conversation().SetLastPostedFragments([]text.TextContent{text.NewTextFragment("old")})

	h := link.Submit("hello", []text.TextContent{text.NewTextFragment("frag")}, nil)
	assert.Nil(t, h)
	assert.Equal(t, []EventKind{KindStarting, KindCancelled}, rec.Kinds())
	assert.Empty(t, tr.sent(), "no request after a veto")
	assert.Empty(t, link.Conversation().LastPostedFragments())
	assert.Empty(t, link.Conversation().History())
}

func TestSubmitCredentialPrecondition(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x"), credErr: errors.New("api key missing")}
	link, rec := newTestLink(t, tr, WithPreflight(RequireCredential(tr)))

	assert.Nil(t, link.Submit("hello", nil, nil))
	assert.Equal(t, []EventKind{KindStarting, KindCancelled}, rec.Kinds())
	assert.Empty(t, tr.sent())
}

func TestSubmitRateLimited(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr, WithPreflight(RateLimit(PerMinute(1))))

	require.NotNil(t, link.Submit("one", nil, nil))
	rec.wait(t)
	link.Close()

	rec2 := newRecorder()
	link.RegisterListener(rec2)
	assert.Nil(t, link.Submit("two", nil, nil))
	assert.Equal(t, []EventKind{KindStarting, KindCancelled}, rec2.Kinds())
}

func TestSubmitStartingErrorFails(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	rec.veto = errors.New("listener broke")

	assert.Nil(t, link.Submit("hello", nil, nil))
	assert.Equal(t, []EventKind{KindStarting, KindFailed}, rec.Kinds())
	assert.Contains(t, rec.last().(*Failed).Diagnostic(), "listener broke")
}

func TestSubmitMissingModelFails(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link := NewLink(NewConversation(), nil, NewDispatcher(tr))
	defer link.Close()
	rec := newRecorder()
	link.RegisterListener(rec)

	assert.Nil(t, link.Submit("hello", nil, nil))
	assert.Equal(t, []EventKind{KindStarting, KindFailed}, rec.Kinds())
	assert.True(t, IsConfiguration(rec.last().(*Failed).Err))
	assert.Empty(t, tr.sent())
}

func TestSubmitSendErrorFails(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("dial tcp: refused")}
	link, rec := newTestLink(t, tr)

	require.NotNil(t, link.Submit("hello", nil, nil))
	rec.wait(t)
	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindFailed}, rec.Kinds())
	assert.True(t, IsTransport(rec.last().(*Failed).Err))
	assert.Nil(t, link.Conversation().Pending())
}

func TestSubmitConnectionResetAfterTwoChunks(t *testing.T) {
	tr := &fakeTransport{
		chunks:   []transport.Chunk{{Delta: "par"}, {Delta: "tial"}},
		errAfter: errors.New("connection reset"),
	}
	link, rec := newTestLink(t, tr)

	require.NotNil(t, link.Submit("hello", nil, nil))
	rec.wait(t)

	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindResponseArriving, KindResponseArriving, KindFailed}, rec.Kinds())
	failed := rec.last().(*Failed)
	assert.Equal(t, "partial", failed.Partial)
	assert.Contains(t, ErrorChain(failed.Err), "connection reset")
	assert.Empty(t, link.Conversation().History(), "failed exchanges are not recorded")
	assert.Equal(t, int32(1), tr.closed.Load())
}

func TestCancelWhileActive(t *testing.T) {
	tr := &fakeTransport{feed: make(chan transport.Chunk)}
	link, rec := newTestLink(t, tr)

	h := link.Submit("hello", nil, nil)
	require.NotNil(t, h)
	tr.feed <- transport.Chunk{Delta: "partial"}

	require.Eventually(t, func() bool { return len(rec.Partials()) == 1 }, time.Second, 5*time.Millisecond)
	link.CancelActive()
	rec.wait(t)

	h.Cancel()
	h.Cancel()
	state, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, state)
	assert.True(t, h.CancelRequested())

	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindResponseArriving, KindCancelled}, rec.Kinds())
	assert.Equal(t, "partial", rec.last().(*Cancelled).Partial)
	assert.Nil(t, link.Conversation().Pending())
	assert.Equal(t, int32(1), tr.closed.Load())
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("done")}
	link, rec := newTestLink(t, tr)

	h := link.Submit("hello", nil, nil)
	require.NotNil(t, h)
	rec.wait(t)
	<-h.Done()

	h.Cancel()
	h.Cancel()
	link.CancelActive()

	assert.Equal(t, StateCompleted, h.State())
	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindResponseArriving, KindResponseArrived}, rec.Kinds())
}

func TestCancelFromStartedListener(t *testing.T) {
	tr := &fakeTransport{feed: make(chan transport.Chunk)}
	link, rec := newTestLink(t, tr)
	link.RegisterListener(ListenerFuncs{OnStarted: func(ev *Started) { ev.Handle.Cancel() }})

	require.NotNil(t, link.Submit("hello", nil, nil))
	rec.wait(t)
	assert.Equal(t, []EventKind{KindStarting, KindStarted, KindCancelled}, rec.Kinds())
}

func TestSecondSubmitWhileInFlightFails(t *testing.T) {
	tr := &fakeTransport{feed: make(chan transport.Chunk)}
	link, _ := newTestLink(t, tr)

	first := link.Submit("one", nil, nil)
	require.NotNil(t, first)

	rec2 := newRecorder()
	unregister := link.RegisterListener(rec2)
	assert.Nil(t, link.Submit("two", nil, nil))
	unregister()

	assert.Equal(t, []EventKind{KindStarting, KindFailed}, rec2.Kinds())
	assert.ErrorIs(t, rec2.last().(*Failed).Err, ErrExchangeInFlight)
	assert.Same(t, first, link.Conversation().Pending())

	close(tr.feed)
	state, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
}

func TestRejectedSubmitKeepsPinnedContext(t *testing.T) {
	tr := &fakeTransport{feed: make(chan transport.Chunk)}
	link, _ := newTestLink(t, tr)
	store := link.InputContext()

	store.Add("a", text.NewTextFragment("alpha"))
	first := link.Submit("one", nil, nil)
	require.NotNil(t, first)
	require.Len(t, link.Conversation().LastPostedFragments(), 1)
	assert.True(t, store.IsEmpty())

	b := store.Add("b", text.NewTextFragment("beta"))
	assert.Nil(t, link.Submit("two", nil, nil))

	assert.Equal(t, []*inputctx.Entry{b}, store.Entries(), "pinned entry survives the rejected submit")
	posted := link.Conversation().LastPostedFragments()
	require.Len(t, posted, 1)
	assert.Equal(t, "alpha", posted[0].Content())
	assert.Same(t, first, link.Conversation().Pending())

	close(tr.feed)
	state, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
}

func TestSlotReleasedBeforeArrivedEvent(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)

	pendingAtArrival := &Handle{}
	link.RegisterListener(ListenerFuncs{OnArrived: func(*ResponseArrived) {
		pendingAtArrival = link.Conversation().Pending()
	}})

	link.Submit("hello", nil, nil)
	rec.wait(t)
	link.Close()
	assert.Nil(t, pendingAtArrival)
}

func TestSubmitOverrideStore(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	link.InputContext().Add("own", text.NewTextFragment("own"))

	override := inputctx.NewStore()
	override.Add("other", text.NewTextFragment("other"))

	link.Submit("q", nil, override)
	rec.wait(t)

	reqs := tr.sent()
	require.Len(t, reqs, 1)
	last, _ := reqs[0].Last()
	assert.Contains(t, last.Content, "other")
	assert.NotContains(t, last.Content, "own")
	assert.True(t, override.IsEmpty())
	assert.Equal(t, 1, link.InputContext().Len())
}

func TestListenerMayEditMessageBeforeDispatch(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	link.RegisterListener(ListenerFuncs{OnStarting: func(ev *Starting) error {
		ev.Message.Content = strings.ToUpper(ev.Message.Content)
		return nil
	}})

	link.Submit("shout", nil, nil)
	rec.wait(t)

	last, _ := tr.sent()[0].Last()
	assert.Equal(t, "SHOUT", last.Content)
}

func TestEverySequenceHasOneTerminal(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("a", "b", "c")}
	link := NewLink(NewConversation(WithModel("m")), nil, NewDispatcher(tr))
	defer link.Close()

	var mu sync.Mutex
	terminals := map[string]int{}
	link.RegisterListener(ListenerFuncs{
		OnArrived:   func(ev *ResponseArrived) { mu.Lock(); terminals[ev.ExchangeID()]++; mu.Unlock() },
		OnFailed:    func(ev *Failed) { mu.Lock(); terminals[ev.ExchangeID()]++; mu.Unlock() },
		OnCancelled: func(ev *Cancelled) { mu.Lock(); terminals[ev.ExchangeID()]++; mu.Unlock() },
	})

	for i := 0; i < 10; i++ {
		h := link.Submit("go", nil, nil)
		if h != nil {
			if i%2 == 0 {
				h.Cancel()
			}
			_, err := h.Wait(context.Background())
			require.NoError(t, err)
		}
	}
	link.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, terminals, 10)
	for id, n := range terminals {
		assert.Equal(t, 1, n, "exchange %s", id)
	}
}

func TestNewConversationClearsHistory(t *testing.T) {
	tr := &fakeTransport{chunks: deltas("x")}
	link, rec := newTestLink(t, tr)
	link.Submit("q", nil, nil)
	rec.wait(t)
	link.Close()
	require.NotEmpty(t, link.Conversation().History())

	link.NewConversation()
	assert.Empty(t, link.Conversation().History())
	assert.Empty(t, link.Conversation().LastPostedFragments())
}
