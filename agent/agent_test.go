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

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// fakeModel replays scripted responses and records every call's input.
type fakeModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	calls     [][]*schema.Message
}

func (m *fakeModel) next(input []*schema.Message) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	if len(m.responses) == 0 {
		return nil, errors.New("fake model has no scripted response left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return m.next(input)
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := m.next(input)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{resp}), nil
}

func toolCallMessage(callID, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{
		{ID: callID, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}},
	})
}

type echoArgs struct {
	Text string `json:"text"`
}

func newEchoTool(t *testing.T) tool.InvokableTool {
	t.Helper()
	et, err := tool.InferTool("echo", "echoes the input text", func(ctx context.Context, input echoArgs) (string, error) {
		return "echo: " + input.Text, nil
	})
	assert.NoError(t, err)
	return et
}

func TestAgentPlainAnswer(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("hi there", nil),
	}}

	a, err := New(ctx, &Config{Model: m, SystemPrompt: "be brief"})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "hello")
	assert.NoError(t, err)

	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	assert.Len(t, msgs, 2)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)

	// the system prompt goes to the model, not into the conversation state
	assert.Equal(t, schema.System, m.calls[0][0].Role)
	assert.Equal(t, "be brief", m.calls[0][0].Content)
}

func TestAgentToolLoop(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "echo", `{"text":"ping"}`),
		schema.AssistantMessage("done", nil),
	}}

	a, err := New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "run the echo")
	assert.NoError(t, err)

	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	assert.Len(t, msgs, 4)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.Equal(t, "echo: ping", msgs[2].Content)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "done", msgs[3].Content)
}

func TestAgentToolErrorFeedsBack(t *testing.T) {
	ctx := context.Background()
	failing, err := tool.InferTool("boom", "always fails", func(ctx context.Context, input echoArgs) (string, error) {
		return "", errors.New("exploded")
	})
	assert.NoError(t, err)

	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "boom", `{"text":"x"}`),
		schema.AssistantMessage("recovered", nil),
	}}

	a, err := New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{failing}},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "go")
	assert.NoError(t, err)

	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "Error: exploded")
	assert.Equal(t, "recovered", msgs[3].Content)
}

func TestAgentReturnDirectly(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "echo", `{"text":"final"}`),
	}}

	a, err := New(ctx, &Config{
		Model: m,
		ToolsConfig: ToolsConfig{
			Tools:          []tool.BaseTool{newEchoTool(t)},
			ReturnDirectly: map[string]bool{"echo": true},
		},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "go")
	assert.NoError(t, err)

	// the run ends on the tool result, no second model call
	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "echo: final", msgs[2].Content)
	assert.Len(t, m.calls, 1)
}

func TestAgentParallelToolCalls(t *testing.T) {
	ctx := context.Background()
	first := toolCallMessage("c1", "echo", `{"text":"a"}`)
	first.ToolCalls = append(first.ToolCalls, schema.ToolCall{
		ID: "c2", Type: "function",
		Function: schema.FunctionCall{Name: "echo", Arguments: `{"text":"b"}`},
	})
	m := &fakeModel{responses: []*schema.Message{
		first,
		schema.AssistantMessage("done", nil),
	}}

	a, err := New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "go")
	assert.NoError(t, err)

	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	assert.Len(t, msgs, 5)
	answered := map[string]string{}
	for _, msg := range msgs {
		if msg.Role == schema.Tool {
			answered[msg.ToolCallID] = msg.Content
		}
	}
	assert.Equal(t, map[string]string{"c1": "echo: a", "c2": "echo: b"}, answered)
}

func TestAgentStructuredOutputToolStrategy(t *testing.T) {
	ctx := context.Background()

	type weather struct {
		City string `json:"city"`
		Temp int    `json:"temp"`
	}
	spec := &SchemaSpec{Name: "weather", Schema: tool.ReflectSchema(&weather{})}

	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "weather", `{"city":"sf","temp":18}`),
	}}

	a, err := New(ctx, &Config{
		Model:          m,
		ResponseFormat: &ToolStrategy{Schemas: []*SchemaSpec{spec}},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "weather in sf")
	assert.NoError(t, err)

	sr, ok := out[StateKeyStructuredResponse].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "sf", sr["city"])

	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	// synthetic tool message answers the structured call
	assert.Equal(t, schema.Tool, msgs[len(msgs)-1].Role)
	assert.Contains(t, msgs[len(msgs)-1].Content, "Returning structured response")
}

func TestAgentStructuredOutputRetryOnMissingField(t *testing.T) {
	ctx := context.Background()

	type weather struct {
		City string `json:"city"`
	}
	spec := &SchemaSpec{Name: "weather", Schema: tool.ReflectSchema(&weather{})}

	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "weather", `{}`),
		toolCallMessage("c2", "weather", `{"city":"sf"}`),
	}}

	a, err := New(ctx, &Config{
		Model:          m,
		ResponseFormat: &ToolStrategy{Schemas: []*SchemaSpec{spec}},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "weather")
	assert.NoError(t, err)

	sr, ok := out[StateKeyStructuredResponse].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "sf", sr["city"])
	assert.Len(t, m.calls, 2)
}

func TestAgentMiddlewareHooksAndJump(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "echo", `{"text":"never runs"}`),
	}}

	var hookOrder []string
	mw := &Middleware{
		Name: "guard",
		BeforeAgent: func(ctx context.Context, s graph.State) (graph.State, error) {
			hookOrder = append(hookOrder, "before_agent")
			return nil, nil
		},
		AfterModel: &NodeHook{
			Fn: func(ctx context.Context, s graph.State) (graph.State, error) {
				hookOrder = append(hookOrder, "after_model")
				return graph.State{StateKeyJumpTo: JumpToEnd}, nil
			},
			CanJumpTo: []string{JumpToEnd},
		},
		AfterAgent: func(ctx context.Context, s graph.State) (graph.State, error) {
			hookOrder = append(hookOrder, "after_agent")
			return nil, nil
		},
	}

	a, err := New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
		Middlewares: []*Middleware{mw},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "go")
	assert.NoError(t, err)
	assert.Equal(t, []string{"before_agent", "after_model", "after_agent"}, hookOrder)

	// the jump skipped tool execution
	msgs, _ := out[StateKeyMessages].([]*schema.Message)
	for _, msg := range msgs {
		assert.NotEqual(t, schema.Tool, msg.Role)
	}
}

func TestAgentWrapToolCallUpdatesState(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "echo", `{"text":"x"}`),
		schema.AssistantMessage("done", nil),
	}}

	mw := &Middleware{
		Name:        "recorder",
		StateSchema: []graph.FieldSpec{{Name: "last_tool"}},
		WrapToolCall: func(ctx context.Context, req *ToolCallRequest, next ToolCallHandler) (*ToolCallResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			resp.Update = graph.State{"last_tool": req.Call.Function.Name}
			return resp, nil
		},
	}

	a, err := New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
		Middlewares: []*Middleware{mw},
	})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "go")
	assert.NoError(t, err)
	assert.Equal(t, "echo", out["last_tool"])
}

func TestAgentMaxIterations(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCallMessage("c1", "echo", `{"text":"1"}`),
		toolCallMessage("c2", "echo", `{"text":"2"}`),
		toolCallMessage("c3", "echo", `{"text":"3"}`),
		toolCallMessage("c4", "echo", `{"text":"4"}`),
	}}

	a, err := New(ctx, &Config{
		Model:         m,
		ToolsConfig:   ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
		MaxIterations: 3,
	})
	assert.NoError(t, err)

	_, err = a.Invoke(ctx, "go")
	var limitErr *graph.ErrMaxStepsExceeded
	assert.ErrorAs(t, err, &limitErr)
}

func TestAgentConfigValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil)
	assert.Error(t, err)

	_, err = New(ctx, &Config{})
	assert.Error(t, err)

	m := &fakeModel{}

	// duplicate middleware names
	_, err = New(ctx, &Config{Model: m, Middlewares: []*Middleware{
		{Name: "dup"}, {Name: "dup"},
	}})
	assert.ErrorContains(t, err, "duplicate middleware name")

	// unknown jump target
	_, err = New(ctx, &Config{Model: m, Middlewares: []*Middleware{
		{Name: "bad", BeforeModel: &NodeHook{
			Fn:        func(ctx context.Context, s graph.State) (graph.State, error) { return nil, nil },
			CanJumpTo: []string{"sideways"},
		}},
	}})
	assert.ErrorContains(t, err, "unknown jump target")

	// duplicate tool names across config and middleware
	_, err = New(ctx, &Config{
		Model:       m,
		ToolsConfig: ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
		Middlewares: []*Middleware{
			{Name: "extra", Tools: []tool.BaseTool{newEchoTool(t)}},
		},
	})
	assert.ErrorContains(t, err, "duplicate tool name")

	// tool name colliding with a structured output schema
	_, err = New(ctx, &Config{
		Model:          m,
		ToolsConfig:    ToolsConfig{Tools: []tool.BaseTool{newEchoTool(t)}},
		ResponseFormat: &ToolStrategy{Schemas: []*SchemaSpec{{Name: "echo"}}},
	})
	assert.ErrorContains(t, err, "collides")

	// unsupported input shape
	a, err := New(ctx, &Config{Model: m})
	assert.NoError(t, err)
	_, err = a.Invoke(ctx, 42)
	assert.ErrorContains(t, err, "unsupported agent input type")
}
