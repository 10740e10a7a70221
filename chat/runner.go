/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package chat exposes an agent through a unified streaming protocol:
// token, interrupt, state and error events over one iterator, plus the
// interrupt lifecycle (resume, cancel), history and retry.
package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/internal/safe"
	"github.com/cloudwego/agentkit/schema"
)

// cancellationMessage is appended to the conversation when a pending
// operation is cancelled, so the model sees what happened.
const cancellationMessage = "The previous operation was cancelled by the user."

// Runner drives chat threads over an agent.
type Runner struct {
	agent *agent.Agent
}

// NewRunner creates a Runner. The agent must be compiled with a
// checkpoint store for threads, interrupts and history to work.
func NewRunner(a *agent.Agent) *Runner {
	return &Runner{agent: a}
}

// Stream sends a user message to a thread and streams the unified
// events of the resulting run.
func (r *Runner) Stream(ctx context.Context, message string, threadID string) *graph.AsyncIterator[*Event] {
	return r.pump(ctx, message, threadID, nil)
}

// ResumeInterrupt resumes a paused thread. A structured response with a
// known interrupt ID is targeted at that interrupt; otherwise the value
// resumes whatever is pending. Emitted tokens carry a "resumed" tag.
func (r *Runner) ResumeInterrupt(ctx context.Context, threadID, interruptID string, response any) *graph.AsyncIterator[*Event] {
	cmd := &graph.Command{}
	if m, ok := response.(map[string]any); ok && interruptID != "" {
		cmd.Resume = map[string]any{interruptID: m}
	} else {
		cmd.ResumeValue = response
	}
	return r.pump(ctx, cmd, threadID, []string{"resumed"})
}

// GetInterrupts returns the pending interrupts of a thread.
func (r *Runner) GetInterrupts(ctx context.Context, threadID string) ([]*graph.PendingInterrupt, error) {
	snap, err := r.agent.GetState(ctx, threadID)
	if err != nil {
		if errors.Is(err, graph.ErrStateNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snap.Interrupts, nil
}

// HasPendingInterrupts reports whether a thread is paused on input.
func (r *Runner) HasPendingInterrupts(ctx context.Context, threadID string) (bool, error) {
	interrupts, err := r.GetInterrupts(ctx, threadID)
	if err != nil {
		return false, err
	}
	return len(interrupts) > 0, nil
}

// Cancel outcomes.
const (
	CancelResultCancelled    = "cancelled"
	CancelResultNoInterrupts = "no_interrupts"
)

// CancelInterrupt cancels whatever a thread is paused on: it appends a
// system cancellation message and clears the pending work, leaving the
// thread idle. Idempotent: returns "no_interrupts" when nothing is
// pending.
func (r *Runner) CancelInterrupt(ctx context.Context, threadID string) (string, error) {
	snap, err := r.agent.GetState(ctx, threadID)
	if err != nil {
		if errors.Is(err, graph.ErrStateNotFound) {
			return CancelResultNoInterrupts, nil
		}
		return "", err
	}
	if len(snap.Next) == 0 && len(snap.Interrupts) == 0 {
		return CancelResultNoInterrupts, nil
	}

	msg := schema.SystemMessage(cancellationMessage)
	msg.ID = uuid.NewString()
	_, err = r.agent.UpdateState(ctx, threadID,
		graph.State{agent.StateKeyMessages: []*schema.Message{msg}},
		graph.WithClearTasks())
	if err != nil {
		return "", err
	}
	return CancelResultCancelled, nil
}

// HistoryEntry is one checkpoint of a thread's history.
type HistoryEntry struct {
	CheckpointID string
	Step         int
	Messages     []*schema.Message
	HasInterrupt bool
	CreatedAt    time.Time
}

// GetHistory returns the checkpoint history of a thread, newest first.
func (r *Runner) GetHistory(ctx context.Context, threadID string) ([]*HistoryEntry, error) {
	snaps, err := r.agent.GetStateHistory(ctx, threadID)
	if err != nil {
		if errors.Is(err, graph.ErrStateNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]*HistoryEntry, 0, len(snaps))
	for _, snap := range snaps {
		msgs, _ := snap.Values[agent.StateKeyMessages].([]*schema.Message)
		entries = append(entries, &HistoryEntry{
			CheckpointID: snap.CheckpointID,
			Step:         snap.Step,
			Messages:     msgs,
			HasInterrupt: len(snap.Interrupts) > 0,
			CreatedAt:    snap.CreatedAt,
		})
	}
	return entries, nil
}

// RetryLastTurn drops the last assistant turn (the assistant message
// and everything after it) and re-runs the model on the remaining
// conversation.
func (r *Runner) RetryLastTurn(ctx context.Context, threadID string) *graph.AsyncIterator[*Event] {
	return r.retryFrom(ctx, threadID, "")
}

// RetryFromMessage drops the identified assistant message and
// everything after it, then re-runs the model.
func (r *Runner) RetryFromMessage(ctx context.Context, threadID, messageID string) *graph.AsyncIterator[*Event] {
	return r.retryFrom(ctx, threadID, messageID)
}

func (r *Runner) retryFrom(ctx context.Context, threadID, messageID string) *graph.AsyncIterator[*Event] {
	snap, err := r.agent.GetState(ctx, threadID)
	if err != nil {
		return errorIter(threadID, err)
	}
	msgs, _ := snap.Values[agent.StateKeyMessages].([]*schema.Message)

	from := -1
	if messageID == "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == schema.Assistant {
				from = i
				break
			}
		}
	} else {
		for i, m := range msgs {
			if m.ID == messageID {
				if m.Role != schema.Assistant {
					return errorIter(threadID, fmt.Errorf("message %q is not an assistant message", messageID))
				}
				from = i
				break
			}
		}
	}
	if from < 0 {
		return errorIter(threadID, errors.New("no assistant message to retry"))
	}

	removals := make([]any, 0, len(msgs)-from)
	for _, m := range msgs[from:] {
		removals = append(removals, agent.RemoveMessage{ID: m.ID})
	}
	_, err = r.agent.UpdateState(ctx, threadID,
		graph.State{agent.StateKeyMessages: removals},
		graph.WithClearTasks())
	if err != nil {
		return errorIter(threadID, err)
	}

	// re-enter the loop with no new input; the model regenerates from
	// the trimmed conversation
	return r.pump(ctx, graph.State{}, threadID, []string{"retry"})
}

func errorIter(threadID string, err error) *graph.AsyncIterator[*Event] {
	iter, gen := graph.NewAsyncIteratorPair[*Event]()
	gen.Send(errorEvent(threadID, err))
	gen.Close()
	return iter
}

func errorEvent(threadID string, err error) *Event {
	return &Event{
		Type:      EventError,
		ThreadID:  threadID,
		Error:     err.Error(),
		ErrorType: errorTypeName(err),
	}
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return ""
	}
	name := t.String()
	name = strings.TrimPrefix(name, "*")
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return name
}

// pump translates graph stream events into the unified chat protocol.
func (r *Runner) pump(ctx context.Context, input any, threadID string, tags []string) *graph.AsyncIterator[*Event] {
	iter, gen := graph.NewAsyncIteratorPair[*Event]()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				gen.Send(errorEvent(threadID, safe.NewPanicErr(p, debug.Stack())))
			}
			gen.Close()
		}()

		src := r.agent.Stream(ctx, input, graph.WithThreadID(threadID))
		failed := false
		interrupted := false
		for {
			ev, ok := src.Next()
			if !ok {
				if !failed && !interrupted {
					gen.Send(&Event{Type: EventMessageComplete, ThreadID: threadID})
				}
				return
			}

			if ev.Err != nil {
				failed = true
				gen.Send(errorEvent(threadID, ev.Err))
				continue
			}

			switch ev.Mode {
			case graph.StreamModeMessages:
				if ev.Chunk == nil || ev.Chunk.Content == "" {
					continue
				}
				meta := &TokenMetadata{Tags: tags}
				if ev.Meta != nil {
					meta.Node = ev.Meta.Node
					meta.Step = ev.Meta.Step
					meta.Tags = append(append([]string(nil), ev.Meta.Tags...), tags...)
				}
				gen.Send(&Event{
					Type:     EventAIToken,
					ThreadID: threadID,
					Content:  ev.Chunk.Content,
					Metadata: meta,
				})

			case graph.StreamModeValues:
				interrupted = len(ev.Interrupts) > 0
				// interrupts surface before the state update they pause
				for _, pi := range ev.Interrupts {
					gen.Send(&Event{
						Type:         EventInterruptDetected,
						ThreadID:     threadID,
						InterruptID:  pi.ID,
						QuestionData: pi.Value,
						Resumable:    true,
						Namespace:    []string{pi.Node},
					})
				}
				gen.Send(&Event{
					Type:         EventStateUpdate,
					ThreadID:     threadID,
					StateKeys:    ev.Values.Keys(),
					HasInterrupt: len(ev.Interrupts) > 0,
				})

			case graph.StreamModeCustom:
				gen.Send(&Event{
					Type:     EventQuestionToken,
					ThreadID: threadID,
					Data:     ev.Custom,
				})
			}
		}
	}()

	return iter
}
