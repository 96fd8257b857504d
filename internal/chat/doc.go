// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the conversational exchange core: it turns a prompt
// plus contextual fragments into a single outgoing message, dispatches it to a
// streaming Transport, and reports the lifecycle of the exchange to listeners.
//
// # Key Types
//
//   - Link: the entry point; Submit, RegisterListener, CancelActive
//   - Conversation: history, model settings and the pending-exchange slot
//   - Exchange: the per-request state machine (Idle, Starting, Active and
//     the terminal states Completed, Failed, Cancelled)
//   - Dispatcher: builds the request and streams it on a worker goroutine
//   - Registry: ordered listener list with a fan-out proxy
//   - Handle: idempotent cancellation of one exchange
//
// # Event Order
//
// Every listener observes, per exchange, exactly one of:
//
//	Starting, Cancelled                      (veto)
//	Starting, Failed                         (failed before dispatch)
//	Starting, Started, ResponseArriving*, Completed | Failed | Cancelled
//
// Starting and Started, and a veto or a failure before dispatch, are
// delivered on the goroutine calling Submit. ResponseArriving and the
// terminal event of a dispatched exchange come from the exchange's worker
// goroutine, one at a time.
//
// # Usage
//
//	conv := chat.NewConversation(chat.WithModel("qwen2.5-coder:7b"))
//	link := chat.NewLink(conv, inputctx.NewStore(), chat.NewDispatcher(client))
//	link.RegisterListener(chat.ListenerFuncs{
//	    OnArriving: func(ev *chat.ResponseArriving) { fmt.Print(ev.Delta) },
//	})
//	if h := link.Submit("Explain this", fragments, nil); h != nil {
//	    h.Wait(ctx)
//	}
package chat
