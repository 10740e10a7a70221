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

	"github.com/cloudwego/agentkit/internal"
	"github.com/cloudwego/agentkit/schema"
)

// AsyncIterator reads values produced by a paired AsyncGenerator.
type AsyncIterator[T any] struct {
	ch *internal.UnboundedChan[T]
}

// Next returns the next value. The second return value is false once the
// generator is closed and all values are consumed.
func (ai *AsyncIterator[T]) Next() (T, bool) {
	return ai.ch.Receive()
}

// AsyncGenerator sends values to a paired AsyncIterator without blocking.
type AsyncGenerator[T any] struct {
	ch *internal.UnboundedChan[T]
}

// Send pushes a value to the iterator.
func (ag *AsyncGenerator[T]) Send(v T) {
	ag.ch.Send(v)
}

// Close ends the stream of values.
func (ag *AsyncGenerator[T]) Close() {
	ag.ch.Close()
}

// NewAsyncIteratorPair creates a connected iterator/generator pair.
func NewAsyncIteratorPair[T any]() (*AsyncIterator[T], *AsyncGenerator[T]) {
	ch := internal.NewUnboundedChan[T]()
	return &AsyncIterator[T]{ch}, &AsyncGenerator[T]{ch}
}

// StreamMode selects which event channels a Stream call produces.
type StreamMode string

const (
	// StreamModeMessages emits message chunks forwarded by nodes.
	StreamModeMessages StreamMode = "messages"
	// StreamModeValues emits a state snapshot after every superstep.
	StreamModeValues StreamMode = "values"
	// StreamModeCustom emits payloads written by nodes via EmitCustom.
	StreamModeCustom StreamMode = "custom"
)

// ChunkMeta locates a message chunk within a run.
type ChunkMeta struct {
	Node string
	Step int
	Tags []string
}

// StreamEvent is one event of a streamed run. Exactly one of the
// mode-specific payloads is set, according to Mode; Err is set on the
// final event of a failed run.
type StreamEvent struct {
	Mode StreamMode

	// messages mode
	Chunk *schema.Message
	Meta  *ChunkMeta

	// values mode
	Values     State
	Interrupts []*PendingInterrupt

	// custom mode
	Custom any

	Err error
}

type emitterCtxKey struct{}

type emitter struct {
	gen   *AsyncGenerator[*StreamEvent]
	modes map[StreamMode]bool
	tags  []string

	node string
	step int
}

func (e *emitter) forTask(node string, step int) *emitter {
	return &emitter{gen: e.gen, modes: e.modes, tags: e.tags, node: node, step: step}
}

func withEmitter(ctx context.Context, e *emitter) context.Context {
	return context.WithValue(ctx, emitterCtxKey{}, e)
}

func getEmitter(ctx context.Context) *emitter {
	e, _ := ctx.Value(emitterCtxKey{}).(*emitter)
	return e
}

// EmitMessageChunk forwards a message chunk to the run's messages channel.
// It is a no-op when the run is not streaming or the messages mode is off.
func EmitMessageChunk(ctx context.Context, msg *schema.Message) {
	e := getEmitter(ctx)
	if e == nil || !e.modes[StreamModeMessages] {
		return
	}
	e.gen.Send(&StreamEvent{
		Mode:  StreamModeMessages,
		Chunk: msg,
		Meta:  &ChunkMeta{Node: e.node, Step: e.step, Tags: e.tags},
	})
}

// MessagesStreaming reports whether the current run wants message chunks.
// Nodes can use it to pick streaming model calls over blocking ones.
func MessagesStreaming(ctx context.Context) bool {
	e := getEmitter(ctx)
	return e != nil && e.modes[StreamModeMessages]
}

// EmitCustom forwards an arbitrary payload to the run's custom channel.
// It is a no-op when the run is not streaming or the custom mode is off.
func EmitCustom(ctx context.Context, payload any) {
	e := getEmitter(ctx)
	if e == nil || !e.modes[StreamModeCustom] {
		return
	}
	e.gen.Send(&StreamEvent{Mode: StreamModeCustom, Custom: payload})
}
