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

package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cloudwego/agentkit/schema"
)

func init() {
	schema.RegisterName[*PendingInterrupt]("_agentkit_pending_interrupt")
}

// PendingInterrupt is a paused point of a run waiting for external input.
type PendingInterrupt struct {
	// ID is stable across resume attempts: task ID plus the ordinal of the
	// Interrupt call within the task.
	ID string
	// Value is the payload handed to Interrupt, e.g. a question for a human.
	Value any
	// Node is the graph node the interrupt originated from.
	Node string
}

// Command resumes or patches an interrupted thread.
type Command struct {
	// Resume maps interrupt IDs to resume values for targeted resumption.
	Resume map[string]any
	// ResumeValue resumes every pending interrupt with the same value.
	// Used when Resume is nil.
	ResumeValue any
	// Update is an optional state patch applied before resuming.
	Update State
}

// interruptSignal aborts a task and carries the pending interrupt upward.
type interruptSignal struct {
	pending *PendingInterrupt
}

func (s *interruptSignal) Error() string {
	return fmt.Sprintf("interrupt: %s", s.pending.ID)
}

// IsInterrupt reports whether an error returned from a node (or wrapped
// handler chain) is an interrupt signal rather than a failure.
func IsInterrupt(err error) bool {
	var sig *interruptSignal
	return errors.As(err, &sig)
}

// taskInterrupts tracks Interrupt calls within one task execution.
type taskInterrupts struct {
	taskID string
	node   string

	mu      sync.Mutex
	counter int

	// resume values available to this run, keyed by interrupt ID
	resume map[string]any
	// bare resume value applying to any pending interrupt
	bare    any
	hasBare bool

	// IDs pending before this task started; only those may consume the
	// bare resume value, otherwise a fresh interrupt would swallow it.
	pending map[string]bool

	// values consumed during this run, persisted for deterministic replay
	consumed map[string]any
}

type taskInterruptsCtxKey struct{}

func withTaskInterrupts(ctx context.Context, ti *taskInterrupts) context.Context {
	return context.WithValue(ctx, taskInterruptsCtxKey{}, ti)
}

func getTaskInterrupts(ctx context.Context) *taskInterrupts {
	ti, _ := ctx.Value(taskInterruptsCtxKey{}).(*taskInterrupts)
	return ti
}

// Interrupt pauses the run at this call site until a resume value is
// provided. When a value is available (from a Command or a previous
// resume), it is returned and execution continues. Otherwise the task is
// aborted with an interrupt signal; the engine records the pending
// interrupt, checkpoints the thread and stops. The task re-runs from the
// top on resume, and every Interrupt call before this one replays with
// its previously consumed value.
//
// The error returned alongside a nil value must be propagated unchanged.
func Interrupt(ctx context.Context, payload any) (any, error) {
	ti := getTaskInterrupts(ctx)
	if ti == nil {
		return nil, errors.New("interrupt outside of a graph run with a checkpoint store")
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	id := ti.taskID + ":" + strconv.Itoa(ti.counter)
	ti.counter++

	if v, ok := ti.consumed[id]; ok {
		return v, nil
	}
	if v, ok := ti.resume[id]; ok {
		ti.consumed[id] = v
		return v, nil
	}
	if ti.hasBare && ti.pending[id] {
		ti.consumed[id] = ti.bare
		return ti.bare, nil
	}

	return nil, &interruptSignal{pending: &PendingInterrupt{ID: id, Value: payload, Node: ti.node}}
}
