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
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/agentkit/internal/safe"
)

// ErrMaxStepsExceeded is returned when a run does not terminate within
// the compiled step limit.
type ErrMaxStepsExceeded struct {
	Limit int
}

func (e *ErrMaxStepsExceeded) Error() string {
	return fmt.Sprintf("graph run exceeded max steps: %d", e.Limit)
}

// TaskIdentifier gives Send inputs a stable task identity, so interrupts
// raised inside fan-out instances keep their IDs across resume.
type TaskIdentifier interface {
	TaskID() string
}

type sendInputCtxKey struct{}

// SendInput returns the private input of a Send fan-out task, or nil when
// the node runs as a plain task.
func SendInput(ctx context.Context) any {
	return ctx.Value(sendInputCtxKey{})
}

// Runnable is a compiled, executable graph.
type Runnable struct {
	g        *Graph
	store    CheckpointStore
	maxSteps int
}

type options struct {
	threadID string
	modes    map[StreamMode]bool
}

// Option configures a single run.
type Option func(*options)

// WithThreadID binds the run to a persistent thread. Required for
// checkpointing, interrupts and resume.
func WithThreadID(id string) Option {
	return func(o *options) {
		o.threadID = id
	}
}

// WithStreamModes restricts the event channels a Stream call produces.
// By default all modes are on.
func WithStreamModes(modes ...StreamMode) Option {
	return func(o *options) {
		o.modes = make(map[StreamMode]bool, len(modes))
		for _, m := range modes {
			o.modes[m] = true
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		modes: map[StreamMode]bool{
			StreamModeMessages: true,
			StreamModeValues:   true,
			StreamModeCustom:   true,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Invoke runs the graph to completion (or until it pauses on an
// interrupt) and returns the output-filtered state. The input is either
// an initial State or a *Command resuming an interrupted thread.
func (r *Runnable) Invoke(ctx context.Context, input any, opts ...Option) (State, error) {
	return r.run(ctx, input, applyOptions(opts), nil)
}

// Stream runs the graph asynchronously, emitting events on the iterator:
// message chunks, per-superstep values snapshots and custom payloads.
// A failed run ends with a single event whose Err is set.
func (r *Runnable) Stream(ctx context.Context, input any, opts ...Option) *AsyncIterator[*StreamEvent] {
	iter, gen := NewAsyncIteratorPair[*StreamEvent]()
	o := applyOptions(opts)
	em := &emitter{gen: gen, modes: o.modes}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				gen.Send(&StreamEvent{Err: safe.NewPanicErr(p, debug.Stack())})
			}
			gen.Close()
		}()

		if _, err := r.run(ctx, input, o, em); err != nil {
			gen.Send(&StreamEvent{Err: err})
		}
	}()

	return iter
}

type taskResult struct {
	task   TaskSpec
	update State
	err    error
	ti     *taskInterrupts
}

func (r *Runnable) run(ctx context.Context, input any, o *options, em *emitter) (State, error) {
	var (
		state State
		tasks []TaskSpec
		step  int
		err   error
	)

	resumeVals := make(map[string]any)
	var bare any
	hasBare := false
	pendingIDs := make(map[string]bool)
	var deferred []string

	switch in := input.(type) {
	case *Command:
		if r.store == nil || o.threadID == "" {
			return nil, errors.New("resume requires a checkpoint store and a thread ID")
		}
		cp, cerr := r.store.Latest(ctx, o.threadID)
		if cerr != nil {
			return nil, cerr
		}
		state = cp.State
		tasks = cp.Next
		step = cp.Step
		deferred = cp.Deferred
		for k, v := range cp.ResumeValues {
			resumeVals[k] = v
		}
		for _, pi := range cp.Interrupts {
			pendingIDs[pi.ID] = true
		}
		if in.Resume != nil {
			for k, v := range in.Resume {
				resumeVals[k] = v
			}
		} else if in.ResumeValue != nil {
			bare = in.ResumeValue
			hasBare = true
		}
		if in.Update != nil {
			if state, err = r.g.schema.Apply(state, in.Update); err != nil {
				return nil, err
			}
		}

	case State:
		filtered, ferr := r.g.schema.FilterInput(in)
		if ferr != nil {
			return nil, ferr
		}
		// a new run on an existing thread continues from its checkpoint,
		// applying the input as an update
		if r.store != nil && o.threadID != "" {
			cp, cerr := r.store.Latest(ctx, o.threadID)
			if cerr == nil {
				state = cp.State
				step = cp.Step
			} else if !errors.Is(cerr, ErrStateNotFound) {
				return nil, cerr
			}
		}
		if state == nil {
			state = r.g.schema.initial()
		}
		if state, err = r.g.schema.Apply(state, filtered); err != nil {
			return nil, err
		}
		if tasks, err = r.routeFrom(ctx, Start, state); err != nil {
			return nil, err
		}
		if serr := r.saveCheckpoint(ctx, o.threadID, step, state, tasks, nil, nil, nil, "input"); serr != nil {
			return nil, serr
		}

	default:
		return nil, fmt.Errorf("unsupported graph input type %T", input)
	}

	for len(tasks) > 0 {
		step++
		if step > r.maxSteps {
			return nil, &ErrMaxStepsExceeded{Limit: r.maxSteps}
		}

		results := r.runTasks(ctx, tasks, state, step, em, resumeVals, bare, hasBare, pendingIDs)

		var pending []*PendingInterrupt
		var interruptedTasks []TaskSpec
		consumed := make(map[string]any)

		for _, res := range results {
			if res.err == nil {
				continue
			}
			var sig *interruptSignal
			if errors.As(res.err, &sig) {
				pending = append(pending, sig.pending)
				interruptedTasks = append(interruptedTasks, res.task)
				for k, v := range res.ti.consumed {
					consumed[k] = v
				}
				continue
			}
			return nil, fmt.Errorf("node %q: %w", res.task.Node, res.err)
		}

		for _, res := range results {
			if res.err != nil {
				continue
			}
			if state, err = r.g.schema.Apply(state, res.update); err != nil {
				return nil, fmt.Errorf("node %q: %w", res.task.Node, err)
			}
		}

		var nextTasks []TaskSpec
		nextTasks = append(nextTasks, interruptedTasks...)

		if len(pending) > 0 {
			// completed siblings keep their state updates, but their routing
			// waits until the interrupted tasks finish on resume; otherwise
			// their successors would run concurrently with the re-run task
			for _, res := range results {
				if res.err == nil {
					deferred = append(deferred, res.task.Node)
				}
			}
		} else {
			sources := deferred
			deferred = nil
			for _, res := range results {
				sources = append(sources, res.task.Node)
			}
			seen := make(map[string]bool)
			routedFrom := make(map[string]bool)
			for _, src := range sources {
				if routedFrom[src] {
					continue
				}
				routedFrom[src] = true
				routed, rerr := r.routeFrom(ctx, src, state)
				if rerr != nil {
					return nil, rerr
				}
				for _, t := range routed {
					if !t.IsSend {
						if seen[t.Node] {
							continue
						}
						seen[t.Node] = true
					}
					nextTasks = append(nextTasks, t)
				}
			}
		}

		if serr := r.saveCheckpoint(ctx, o.threadID, step, state, nextTasks, pending, consumed, deferred, "loop"); serr != nil {
			return nil, serr
		}

		if em != nil && em.modes[StreamModeValues] {
			em.gen.Send(&StreamEvent{
				Mode:       StreamModeValues,
				Values:     r.g.schema.FilterOutput(state),
				Interrupts: pending,
			})
		}

		if len(pending) > 0 {
			return r.g.schema.FilterOutput(state), nil
		}

		tasks = nextTasks
		// resume values are scoped to the superstep that resumed; a later
		// interrupt reusing the same call site ID must pause again
		resumeVals = make(map[string]any)
		hasBare = false
		pendingIDs = make(map[string]bool)
	}

	return r.g.schema.FilterOutput(state), nil
}

func (r *Runnable) runTasks(ctx context.Context, tasks []TaskSpec, state State, step int,
	em *emitter, resumeVals map[string]any, bare any, hasBare bool, pendingIDs map[string]bool) []taskResult {

	results := make([]taskResult, len(tasks))

	runOne := func(i int) func() error {
		return func() error {
			t := tasks[i]
			ti := &taskInterrupts{
				taskID:   t.TaskID,
				node:     t.Node,
				resume:   resumeVals,
				bare:     bare,
				hasBare:  hasBare,
				pending:  pendingIDs,
				consumed: make(map[string]any),
			}
			tctx := withTaskInterrupts(ctx, ti)
			if em != nil {
				tctx = withEmitter(tctx, em.forTask(t.Node, step))
			}
			if t.IsSend {
				tctx = context.WithValue(tctx, sendInputCtxKey{}, t.Input)
			}

			update, err := func() (u State, nerr error) {
				defer func() {
					if p := recover(); p != nil {
						nerr = safe.NewPanicErr(p, debug.Stack())
					}
				}()
				return r.g.nodes[t.Node](tctx, state.Clone())
			}()

			results[i] = taskResult{task: t, update: update, err: err, ti: ti}
			return nil
		}
	}

	if len(tasks) == 1 {
		_ = runOne(0)()
		return results
	}

	eg := &errgroup.Group{}
	for i := range tasks {
		eg.Go(runOne(i))
	}
	_ = eg.Wait()
	return results
}

func (r *Runnable) routeFrom(ctx context.Context, node string, state State) ([]TaskSpec, error) {
	if to, ok := r.g.edges[node]; ok {
		if to == End {
			return nil, nil
		}
		return []TaskSpec{{Node: to, TaskID: to}}, nil
	}

	br, ok := r.g.branches[node]
	if !ok {
		// no outgoing edge: implicit end
		return nil, nil
	}

	decision, err := br.route(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("branch from %q: %w", node, err)
	}
	if decision == nil {
		return nil, fmt.Errorf("branch from %q returned nil decision", node)
	}

	if len(decision.Sends) > 0 {
		tasks := make([]TaskSpec, 0, len(decision.Sends))
		for _, send := range decision.Sends {
			if !br.destinations[send.Node] {
				return nil, fmt.Errorf("branch from %q routed to undeclared destination %q", node, send.Node)
			}
			taskID := ""
			if tid, ok := send.Input.(TaskIdentifier); ok {
				taskID = send.Node + ":" + tid.TaskID()
			} else {
				taskID = send.Node + ":" + uuid.NewString()
			}
			tasks = append(tasks, TaskSpec{Node: send.Node, Input: send.Input, IsSend: true, TaskID: taskID})
		}
		return tasks, nil
	}

	if decision.Node == End {
		return nil, nil
	}
	if !br.destinations[decision.Node] {
		return nil, fmt.Errorf("branch from %q routed to undeclared destination %q", node, decision.Node)
	}
	return []TaskSpec{{Node: decision.Node, TaskID: decision.Node}}, nil
}

func (r *Runnable) saveCheckpoint(ctx context.Context, threadID string, step int, state State,
	next []TaskSpec, pending []*PendingInterrupt, consumed map[string]any, deferred []string, source string) error {

	if r.store == nil || threadID == "" {
		return nil
	}
	return r.store.Put(ctx, threadID, &Checkpoint{
		ID:           uuid.NewString(),
		Step:         step,
		State:        state,
		Next:         next,
		Interrupts:   pending,
		ResumeValues: consumed,
		Deferred:     deferred,
		Source:       source,
		CreatedAt:    time.Now(),
	})
}

func snapshotOf(cp *Checkpoint, schema *Schema) *StateSnapshot {
	next := make([]string, 0, len(cp.Next))
	for _, t := range cp.Next {
		next = append(next, t.Node)
	}
	return &StateSnapshot{
		CheckpointID: cp.ID,
		Step:         cp.Step,
		Values:       schema.FilterOutput(cp.State),
		Next:         next,
		Interrupts:   cp.Interrupts,
		CreatedAt:    cp.CreatedAt,
	}
}

// GetState returns the latest snapshot of a thread.
func (r *Runnable) GetState(ctx context.Context, threadID string) (*StateSnapshot, error) {
	if r.store == nil {
		return nil, errors.New("no checkpoint store configured")
	}
	cp, err := r.store.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(cp, r.g.schema), nil
}

// GetStateHistory returns all snapshots of a thread, newest first.
func (r *Runnable) GetStateHistory(ctx context.Context, threadID string) ([]*StateSnapshot, error) {
	if r.store == nil {
		return nil, errors.New("no checkpoint store configured")
	}
	cps, err := r.store.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*StateSnapshot, 0, len(cps))
	for i := len(cps) - 1; i >= 0; i-- {
		out = append(out, snapshotOf(cps[i], r.g.schema))
	}
	return out, nil
}

type updateOptions struct {
	clearTasks bool
}

// UpdateOption configures UpdateState.
type UpdateOption func(*updateOptions)

// WithClearTasks drops the pending frontier and interrupts along with the
// update, leaving the thread idle from a clean state.
func WithClearTasks() UpdateOption {
	return func(o *updateOptions) {
		o.clearTasks = true
	}
}

// UpdateState applies a state patch through the schema reducers and
// writes a new checkpoint. Returns the new checkpoint ID.
func (r *Runnable) UpdateState(ctx context.Context, threadID string, update State, opts ...UpdateOption) (string, error) {
	if r.store == nil {
		return "", errors.New("no checkpoint store configured")
	}
	o := &updateOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cp, err := r.store.Latest(ctx, threadID)
	if err != nil {
		return "", err
	}
	state, err := r.g.schema.Apply(cp.State, update)
	if err != nil {
		return "", err
	}

	next := cp.Next
	interrupts := cp.Interrupts
	resumeValues := cp.ResumeValues
	deferred := cp.Deferred
	if o.clearTasks {
		next = nil
		interrupts = nil
		resumeValues = nil
		deferred = nil
	}

	ncp := &Checkpoint{
		ID:           uuid.NewString(),
		Step:         cp.Step,
		State:        state,
		Next:         next,
		Interrupts:   interrupts,
		ResumeValues: resumeValues,
		Deferred:     deferred,
		Source:       "update",
		CreatedAt:    time.Now(),
	}
	if err = r.store.Put(ctx, threadID, ncp); err != nil {
		return "", err
	}
	return ncp.ID, nil
}
