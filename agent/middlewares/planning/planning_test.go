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

package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

func writeTodosRequest(args string) *agent.ToolCallRequest {
	return &agent.ToolCallRequest{Call: schema.ToolCall{
		ID:       "c1",
		Function: schema.FunctionCall{Name: writeTodosToolName, Arguments: args},
	}}
}

func TestWriteTodosTool(t *testing.T) {
	ctx := context.Background()
	mw, err := New()
	assert.NoError(t, err)
	assert.Equal(t, MiddlewareName, mw.Name)
	assert.Len(t, mw.Tools, 1)
	assert.Equal(t, []graph.FieldSpec{{Name: StateKeyTodos}}, mw.StateSchema)

	info, err := mw.Tools[0].Info(ctx)
	assert.NoError(t, err)
	assert.Equal(t, writeTodosToolName, info.Name)

	out, err := mw.Tools[0].(tool.InvokableTool).InvokableRun(ctx,
		`{"todos":[{"content":"write tests","status":"in_progress"}]}`)
	assert.NoError(t, err)
	assert.Contains(t, out, "Updated todo list to")
	assert.Contains(t, out, "write tests")
}

func TestWrapToolCallPersistsTodos(t *testing.T) {
	ctx := context.Background()
	mw, err := New()
	assert.NoError(t, err)

	next := func(ctx context.Context, req *agent.ToolCallRequest) (*agent.ToolCallResponse, error) {
		return agent.NewToolCallResponse(schema.ToolMessage("ok", req.Call.ID)), nil
	}

	t.Run("parsed list lands in the state update", func(t *testing.T) {
		req := writeTodosRequest(`{"todos":[{"content":"a","status":"pending"},{"content":"b","status":"completed"}]}`)
		resp, werr := mw.WrapToolCall(ctx, req, next)
		assert.NoError(t, werr)
		todos, ok := resp.Update[StateKeyTodos].([]TODO)
		assert.True(t, ok)
		assert.Len(t, todos, 2)
		assert.Equal(t, "a", todos[0].Content)
		assert.Equal(t, "completed", todos[1].Status)
	})

	t.Run("other tools are untouched", func(t *testing.T) {
		req := &agent.ToolCallRequest{Call: schema.ToolCall{
			ID: "c2", Function: schema.FunctionCall{Name: "search", Arguments: `{}`},
		}}
		resp, werr := mw.WrapToolCall(ctx, req, next)
		assert.NoError(t, werr)
		assert.Nil(t, resp.Update)
	})

	t.Run("unparseable arguments keep the tool result", func(t *testing.T) {
		req := writeTodosRequest(`not json`)
		resp, werr := mw.WrapToolCall(ctx, req, next)
		assert.NoError(t, werr)
		assert.Equal(t, "ok", resp.Message.Content)
		assert.Nil(t, resp.Update)
	})
}

func TestPromptInjection(t *testing.T) {
	ctx := context.Background()
	mw, err := New()
	assert.NoError(t, err)

	_, err = mw.WrapModelCall(ctx, &agent.ModelRequest{SystemPrompt: "base"},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			assert.Contains(t, req.SystemPrompt, "base\n\n")
			assert.Contains(t, req.SystemPrompt, writeTodosToolName)
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)
}

func TestTodos(t *testing.T) {
	s := graph.State{StateKeyTodos: []TODO{{Content: "x", Status: "pending"}}}
	assert.Len(t, Todos(s), 1)
	assert.Empty(t, Todos(graph.State{}))
	assert.Empty(t, Todos(graph.State{StateKeyTodos: "garbage"}))
}
