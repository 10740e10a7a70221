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

package deep

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/agent/middlewares/filesystem"
	"github.com/cloudwego/agentkit/agent/middlewares/planning"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
)

type fakeModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	calls     [][]*schema.Message
}

func (m *fakeModel) next(input []*schema.Message) *schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return m.next(input), nil
}

func (m *fakeModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{m.next(input)}), nil
}

func toolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{
		{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}},
	})
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil)
	assert.ErrorContains(t, err, "requires a model")

	_, err = New(ctx, &Config{})
	assert.ErrorContains(t, err, "requires a model")
}

func TestSystemPromptComposition(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{schema.AssistantMessage("hi", nil)}}

	a, err := New(ctx, &Config{Model: m, SystemPrompt: "You ship software."})
	assert.NoError(t, err)

	_, err = a.Invoke(ctx, "hello")
	assert.NoError(t, err)

	assert.Len(t, m.calls, 1)
	system := m.calls[0][0]
	assert.Equal(t, schema.System, system.Role)
	assert.Contains(t, system.Content, "You are a helpful assistant")
	assert.Contains(t, system.Content, "You ship software.")
	// the built-in middlewares announce their tools
	assert.Contains(t, system.Content, "write_todos")
	assert.Contains(t, system.Content, "read_file")
}

func TestPlanningFlow(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCall("c1", "write_todos", `{"todos":[{"content":"research","status":"in_progress"}]}`),
		schema.AssistantMessage("planned", nil),
	}}

	a, err := New(ctx, &Config{Model: m, WithoutSummarization: true})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "plan the work")
	assert.NoError(t, err)

	todos := planning.Todos(out)
	assert.Len(t, todos, 1)
	assert.Equal(t, "research", todos[0].Content)

	msgs, _ := out[agent.StateKeyMessages].([]*schema.Message)
	assert.Equal(t, "planned", msgs[len(msgs)-1].Content)
}

func TestFilesystemFlow(t *testing.T) {
	ctx := context.Background()
	backend := filesystem.NewInMemoryBackend()
	m := &fakeModel{responses: []*schema.Message{
		toolCall("c1", "write_file", `{"file_path":"/draft.md","content":"notes"}`),
		schema.AssistantMessage("saved", nil),
	}}

	a, err := New(ctx, &Config{Model: m, Backend: backend})
	assert.NoError(t, err)

	_, err = a.Invoke(ctx, "save a draft")
	assert.NoError(t, err)

	content, err := backend.Read(ctx, "/draft.md", 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, "notes", content)
}

func TestDelegationFlow(t *testing.T) {
	ctx := context.Background()
	m := &fakeModel{responses: []*schema.Message{
		toolCall("c1", "task", `{"prompt":"dig deeper","subagent_type":"general-purpose"}`),
		schema.AssistantMessage("dug deep", nil),
	}}

	a, err := New(ctx, &Config{Model: m, WithoutSummarization: true})
	assert.NoError(t, err)

	out, err := a.Invoke(ctx, "investigate")
	assert.NoError(t, err)

	msgs, _ := out[agent.StateKeyMessages].([]*schema.Message)
	// the sub-agent ran on the same model and its answer came back as the
	// task tool result
	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.Equal(t, "dug deep", msgs[2].Content)
}
