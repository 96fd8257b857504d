// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// =============================================================================
// HELPERS
// =============================================================================

type scriptStream struct {
	chunks []transport.Chunk
	err    error
}

func (s *scriptStream) Recv() (transport.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return transport.Chunk{}, s.err
		}
		return transport.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptStream) Close() error { return nil }

type scriptTransport struct {
	chunks []transport.Chunk
	err    error
}

func (t *scriptTransport) Send(context.Context, *transport.Request) (transport.Stream, error) {
	chunks := append([]transport.Chunk(nil), t.chunks...)
	return &scriptStream{chunks: chunks, err: t.err}, nil
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "sub", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func newLink(t *testing.T, j *Journal, tr transport.Transport) *chat.Link {
	t.Helper()
	conv := chat.NewConversation(chat.WithModel("test-model"))
	link := chat.NewLink(conv, nil, chat.NewDispatcher(tr))
	link.RegisterListener(j)
	t.Cleanup(link.Close)
	return link
}

func wait(t *testing.T, h *chat.Handle) chat.State {
	t.Helper()
	require.NotNil(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := h.Wait(ctx)
	require.NoError(t, err)
	return state
}

// =============================================================================
// LISTENER TESTS
// =============================================================================

func TestJournalRecordsCompletedExchange(t *testing.T) {
	j := openTestJournal(t)
	link := newLink(t, j, &scriptTransport{chunks: []transport.Chunk{
		{Delta: "Hel"},
		{Delta: "lo"},
		{Final: true, Text: "Hello", Usage: transport.Usage{PromptTokens: 12, CompletionTokens: 2}},
	}})

	frag := text.NewCodeFragment("int x;", "java", "A.java")
	h := link.Submit("Explain this", []text.TextContent{frag}, nil)
	assert.Equal(t, chat.StateCompleted, wait(t, h))

	rec, err := j.Get(context.Background(), h.ExchangeID())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
	assert.Equal(t, "test-model", rec.Model)
	assert.Equal(t, "Explain this", rec.Prompt)
	assert.Contains(t, rec.Message, "```java")
	assert.Equal(t, 1, rec.Fragments)
	assert.Equal(t, "Hello", rec.Response)
	assert.Equal(t, 2, rec.Chunks)
	assert.Equal(t, 12, rec.PromptTokens)
	assert.Equal(t, 2, rec.CompletionTokens)
	assert.False(t, rec.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, rec.Duration(), time.Duration(0))
}

func TestJournalRecordsFailure(t *testing.T) {
	j := openTestJournal(t)
	link := newLink(t, j, &scriptTransport{
		chunks: []transport.Chunk{{Delta: "par"}},
		err:    errors.New("connection reset"),
	})

	h := link.Submit("hi", nil, nil)
	assert.Equal(t, chat.StateFailed, wait(t, h))

	rec, err := j.Get(context.Background(), h.ExchangeID())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, "par", rec.Response)
	assert.Contains(t, rec.Error, "connection reset")
	assert.Equal(t, 1, rec.Chunks)
}

func TestJournalRecordsVeto(t *testing.T) {
	j := openTestJournal(t)
	link := newLink(t, j, &scriptTransport{})
	link.RegisterListener(chat.ListenerFuncs{
		OnStarting: func(*chat.Starting) error {
			return &chat.PreconditionError{Reason: "no"}
		},
	})

	assert.Nil(t, link.Submit("vetoed prompt", nil, nil))

	records, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StateCancelled, records[0].State)
	assert.Equal(t, "vetoed prompt", records[0].Prompt)
}

func TestJournalDirectEvents(t *testing.T) {
	j := openTestJournal(t)
	msg := transport.NewUserMessage("original")
	ev := &chat.Starting{ID: "abc-123", Prompt: "p", Message: &msg, Model: "m", At: time.Now()}

	require.NoError(t, j.ExchangeStarting(ev))
	msg.Content = "edited"
	j.ExchangeStarted(ev.Started(nil))
	j.ExchangeCancelled(ev.Cancelled("half"))

	rec, err := j.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "edited", rec.Message)
	assert.Equal(t, StateCancelled, rec.State)
	assert.Equal(t, "half", rec.Response)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func seed(t *testing.T, j *Journal, id, prompt string, at time.Time) {
	t.Helper()
	msg := transport.NewUserMessage(prompt)
	ev := &chat.Starting{ID: id, Prompt: prompt, Message: &msg, Model: "m", At: at}
	require.NoError(t, j.ExchangeStarting(ev))
	j.ExchangeStarted(ev.Started(nil))
	j.ResponseArrived(ev.Arrived("answer to "+prompt, transport.Usage{}))
}

func TestJournalListSearchDelete(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Now()

	seed(t, j, "id-1", "explain goroutines", base)
	seed(t, j, "id-2", "what is 100% coverage", base.Add(time.Second))
	seed(t, j, "id-3", "Explain channels", base.Add(2*time.Second))

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "id-3", all[0].ID, "newest first")

	limited, err := j.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	found, err := j.Search(ctx, "EXPLAIN", 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = j.Search(ctx, "100%", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "id-2", found[0].ID)

	_, err = j.Get(ctx, "id-")
	assert.Error(t, err, "ambiguous prefix")

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, j.Delete(ctx, "id-1"))
	assert.ErrorIs(t, j.Delete(ctx, "id-1"), ErrRecordNotFound)
	_, err = j.Get(ctx, "id-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	cleared, err := j.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	seed(t, j, "persist", "hello", time.Now())
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Get(context.Background(), "persist")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatList(t *testing.T) {
	assert.Equal(t, "No exchanges found.", FormatList(nil))

	out := FormatList([]Record{{
		ID:        "0123456789abcdef",
		Model:     "qwen2.5-coder:7b",
		Prompt:    "first line\nsecond line",
		State:     StateCompleted,
		StartedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
	}})
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "2025-01-02 03:04")
	assert.Contains(t, out, "first line")
	assert.NotContains(t, out, "second line")
}

func TestExportMarkdown(t *testing.T) {
	rec := Record{
		ID:         "x1",
		Model:      "m",
		Prompt:     "raw",
		Message:    "composed",
		State:      StateFailed,
		Response:   "partial",
		Error:      "send failed\nconnection reset",
		StartedAt:  time.Unix(0, 0),
		FinishedAt: time.Unix(2, 0),
	}
	md := rec.ExportMarkdown()
	assert.True(t, strings.HasPrefix(md, "# Exchange x1"))
	assert.Contains(t, md, "State: failed (2s)")
	assert.Contains(t, md, "composed")
	assert.Contains(t, md, "> connection reset")
}
