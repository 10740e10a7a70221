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
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/agentkit/schema"
)

// gob registers []string among its basic types, so log values round-trip
// through the checkpoint store without an explicit RegisterName.

func appendStrings(existing any, update any) any {
	cur, _ := existing.([]string)
	switch u := update.(type) {
	case string:
		return append(cur, u)
	case []string:
		return append(cur, u...)
	}
	return cur
}

func logSchema(t *testing.T) *Schema {
	t.Helper()
	sc, err := NewSchema(FieldSpec{
		Name:    "log",
		Default: func() any { return []string{} },
		Reducer: appendStrings,
	})
	assert.NoError(t, err)
	return sc
}

func appendNode(entry string) NodeFunc {
	return func(ctx context.Context, s State) (State, error) {
		return State{"log": entry}, nil
	}
}

func TestLinearGraph(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", appendNode("a")))
	assert.NoError(t, g.AddNode("b", appendNode("b")))
	assert.NoError(t, g.AddEdge(Start, "a"))
	assert.NoError(t, g.AddEdge("a", "b"))
	assert.NoError(t, g.AddEdge("b", End))

	r, err := g.Compile()
	assert.NoError(t, err)

	out, err := r.Invoke(context.Background(), State{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out["log"])
}

func TestBranchRouting(t *testing.T) {
	sc, err := NewSchema(
		FieldSpec{Name: "log", Default: func() any { return []string{} }, Reducer: appendStrings},
		FieldSpec{Name: "pick"},
	)
	assert.NoError(t, err)

	g := NewGraph(sc)
	assert.NoError(t, g.AddNode("decide", func(ctx context.Context, s State) (State, error) {
		return State{"log": "decide"}, nil
	}))
	assert.NoError(t, g.AddNode("left", appendNode("left")))
	assert.NoError(t, g.AddNode("right", appendNode("right")))
	assert.NoError(t, g.AddEdge(Start, "decide"))
	assert.NoError(t, g.AddBranch("decide", func(ctx context.Context, s State) (*RouteDecision, error) {
		if pick, _ := s["pick"].(string); pick == "right" {
			return GoTo("right"), nil
		}
		return GoTo("left"), nil
	}, []string{"left", "right"}))
	assert.NoError(t, g.AddEdge("left", End))
	assert.NoError(t, g.AddEdge("right", End))

	r, err := g.Compile()
	assert.NoError(t, err)

	out, err := r.Invoke(context.Background(), State{"pick": "right"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"decide", "right"}, out["log"])

	out, err = r.Invoke(context.Background(), State{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"decide", "left"}, out["log"])
}

func TestBranchToUndeclaredDestination(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", appendNode("a")))
	assert.NoError(t, g.AddNode("b", appendNode("b")))
	assert.NoError(t, g.AddEdge(Start, "a"))
	// "b" exists as a node but is not a declared destination
	assert.NoError(t, g.AddBranch("a", func(ctx context.Context, s State) (*RouteDecision, error) {
		return GoTo("b"), nil
	}, []string{"a"}))

	r, err := g.Compile()
	assert.NoError(t, err)

	_, err = r.Invoke(context.Background(), State{})
	assert.ErrorContains(t, err, "undeclared destination")
}

func TestFanOut(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("seed", appendNode("seed")))
	assert.NoError(t, g.AddNode("worker", func(ctx context.Context, s State) (State, error) {
		in, _ := SendInput(ctx).(string)
		return State{"log": "worker:" + in}, nil
	}))
	assert.NoError(t, g.AddEdge(Start, "seed"))
	assert.NoError(t, g.AddBranch("seed", func(ctx context.Context, s State) (*RouteDecision, error) {
		return FanOut(
			Send{Node: "worker", Input: "x"},
			Send{Node: "worker", Input: "y"},
			Send{Node: "worker", Input: "z"},
		), nil
	}, []string{"worker"}))

	r, err := g.Compile()
	assert.NoError(t, err)

	out, err := r.Invoke(context.Background(), State{})
	assert.NoError(t, err)

	log, _ := out["log"].([]string)
	assert.Equal(t, "seed", log[0])
	rest := append([]string(nil), log[1:]...)
	sort.Strings(rest)
	assert.Equal(t, []string{"worker:x", "worker:y", "worker:z"}, rest)
}

func TestMaxStepsExceeded(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("loop", appendNode("loop")))
	assert.NoError(t, g.AddEdge(Start, "loop"))
	assert.NoError(t, g.AddBranch("loop", func(ctx context.Context, s State) (*RouteDecision, error) {
		return GoTo("loop"), nil
	}, []string{"loop"}))

	r, err := g.Compile(WithMaxSteps(3))
	assert.NoError(t, err)

	_, err = r.Invoke(context.Background(), State{})
	var limitErr *ErrMaxStepsExceeded
	assert.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)
}

func TestNodeErrorPropagates(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("boom", func(ctx context.Context, s State) (State, error) {
		return nil, fmt.Errorf("kaput")
	}))
	assert.NoError(t, g.AddEdge(Start, "boom"))

	r, err := g.Compile()
	assert.NoError(t, err)

	_, err = r.Invoke(context.Background(), State{})
	assert.ErrorContains(t, err, "kaput")
	assert.ErrorContains(t, err, "boom")
}

func TestNodePanicIsRecovered(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("panics", func(ctx context.Context, s State) (State, error) {
		panic("unexpected")
	}))
	assert.NoError(t, g.AddEdge(Start, "panics"))

	r, err := g.Compile()
	assert.NoError(t, err)

	_, err = r.Invoke(context.Background(), State{})
	assert.ErrorContains(t, err, "unexpected")
}

func TestSchemaApply(t *testing.T) {
	sc, err := NewSchema(
		FieldSpec{Name: "counter", Reducer: func(existing, update any) any {
			cur, _ := existing.(int)
			inc, _ := update.(int)
			return cur + inc
		}},
		FieldSpec{Name: "plain"},
	)
	assert.NoError(t, err)

	s, err := sc.Apply(State{}, State{"counter": 2, "plain": "v"})
	assert.NoError(t, err)
	s, err = sc.Apply(s, State{"counter": 3})
	assert.NoError(t, err)
	assert.Equal(t, 5, s["counter"])
	assert.Equal(t, "v", s["plain"])

	// nil clears the field entirely
	s, err = sc.Apply(s, State{"plain": nil})
	assert.NoError(t, err)
	_, ok := s["plain"]
	assert.False(t, ok)

	_, err = sc.Apply(s, State{"unknown": 1})
	assert.Error(t, err)
}

func TestSchemaFilters(t *testing.T) {
	sc, err := NewSchema(
		FieldSpec{Name: "visible"},
		FieldSpec{Name: "internal", OmitFromInput: true, OmitFromOutput: true},
	)
	assert.NoError(t, err)

	in, err := sc.FilterInput(State{"visible": 1, "internal": 2})
	assert.NoError(t, err)
	assert.Equal(t, State{"visible": 1}, in)

	_, err = sc.FilterInput(State{"nope": 1})
	assert.Error(t, err)

	out := sc.FilterOutput(State{"visible": 1, "internal": 2})
	assert.Equal(t, State{"visible": 1}, out)
}

func TestDuplicateSchemaField(t *testing.T) {
	_, err := NewSchema(FieldSpec{Name: "x"}, FieldSpec{Name: "x"})
	assert.Error(t, err)
}

func TestCheckpointContinuesThread(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", appendNode("a")))
	assert.NoError(t, g.AddEdge(Start, "a"))
	assert.NoError(t, g.AddEdge("a", End))

	r, err := g.Compile(WithCheckpointStore(store))
	assert.NoError(t, err)

	_, err = r.Invoke(ctx, State{"log": []string{"first"}}, WithThreadID("t1"))
	assert.NoError(t, err)

	// a second run on the same thread continues from the checkpoint
	out, err := r.Invoke(ctx, State{"log": []string{"second"}}, WithThreadID("t1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "a", "second", "a"}, out["log"])

	snap, err := r.GetState(ctx, "t1")
	assert.NoError(t, err)
	assert.Empty(t, snap.Next)
	assert.Empty(t, snap.Interrupts)

	history, err := r.GetStateHistory(ctx, "t1")
	assert.NoError(t, err)
	assert.True(t, len(history) >= 2)
	// newest first
	assert.Equal(t, snap.CheckpointID, history[0].CheckpointID)
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", appendNode("a")))
	assert.NoError(t, g.AddEdge(Start, "a"))
	assert.NoError(t, g.AddEdge("a", End))

	r, err := g.Compile(WithCheckpointStore(store))
	assert.NoError(t, err)

	_, err = r.Invoke(ctx, State{}, WithThreadID("t1"))
	assert.NoError(t, err)

	cpID, err := r.UpdateState(ctx, "t1", State{"log": "patched"}, WithClearTasks())
	assert.NoError(t, err)
	assert.NotEmpty(t, cpID)

	snap, err := r.GetState(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, cpID, snap.CheckpointID)
	assert.Equal(t, []string{"a", "patched"}, snap.Values["log"])

	_, err = r.UpdateState(ctx, "missing", State{})
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestStreamValuesEvents(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", appendNode("a")))
	assert.NoError(t, g.AddNode("b", func(ctx context.Context, s State) (State, error) {
		EmitCustom(ctx, "side-channel")
		EmitMessageChunk(ctx, schema.AssistantMessage("tok", nil))
		return State{"log": "b"}, nil
	}))
	assert.NoError(t, g.AddEdge(Start, "a"))
	assert.NoError(t, g.AddEdge("a", "b"))
	assert.NoError(t, g.AddEdge("b", End))

	r, err := g.Compile()
	assert.NoError(t, err)

	iter := r.Stream(context.Background(), State{})
	var values []State
	var custom []any
	var chunks []*schema.Message
	for {
		ev, ok := iter.Next()
		if !ok {
			break
		}
		assert.NoError(t, ev.Err)
		switch ev.Mode {
		case StreamModeValues:
			values = append(values, ev.Values)
		case StreamModeCustom:
			custom = append(custom, ev.Custom)
		case StreamModeMessages:
			chunks = append(chunks, ev.Chunk)
			assert.Equal(t, "b", ev.Meta.Node)
		}
	}

	assert.Len(t, values, 2)
	assert.Empty(t, cmp.Diff(State{"log": []string{"a", "b"}}, values[1]))
	assert.Equal(t, []any{"side-channel"}, custom)
	assert.Len(t, chunks, 1)
	assert.Equal(t, "tok", chunks[0].Content)
}

func TestStreamModeFilter(t *testing.T) {
	g := NewGraph(logSchema(t))
	assert.NoError(t, g.AddNode("a", func(ctx context.Context, s State) (State, error) {
		assert.False(t, MessagesStreaming(ctx))
		EmitCustom(ctx, "dropped")
		return State{"log": "a"}, nil
	}))
	assert.NoError(t, g.AddEdge(Start, "a"))
	assert.NoError(t, g.AddEdge("a", End))

	r, err := g.Compile()
	assert.NoError(t, err)

	iter := r.Stream(context.Background(), State{}, WithStreamModes(StreamModeValues))
	for {
		ev, ok := iter.Next()
		if !ok {
			break
		}
		assert.Equal(t, StreamModeValues, ev.Mode)
	}
}
