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

// Package planning gives an agent a write_todos tool and a todos state
// field so it can plan multi-step work and report progress.
package planning

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// MiddlewareName is the registered name of the planning middleware.
const MiddlewareName = "planning"

// StateKeyTodos is the agent state field holding the current todo list.
const StateKeyTodos = "todos"

const writeTodosToolName = "write_todos"

func init() {
	schema.RegisterName[[]TODO]("_agentkit_todos")
}

// TODO is one entry of the todo list.
type TODO struct {
	Content string `json:"content"`
	Status  string `json:"status" jsonschema:"enum=pending,enum=in_progress,enum=completed"`
}

type writeTodosArguments struct {
	Todos []TODO `json:"todos"`
}

// New builds the planning middleware.
func New() (*agent.Middleware, error) {
	t, err := tool.InferTool(writeTodosToolName, writeTodosToolDescription,
		func(ctx context.Context, input writeTodosArguments) (string, error) {
			todos, merr := sonic.MarshalString(input.Todos)
			if merr != nil {
				return "", merr
			}
			return fmt.Sprintf("Updated todo list to %s", todos), nil
		})
	if err != nil {
		return nil, err
	}

	return &agent.Middleware{
		Name: MiddlewareName,
		StateSchema: []graph.FieldSpec{
			{Name: StateKeyTodos},
		},
		Tools: []tool.BaseTool{t},
		WrapModelCall: func(ctx context.Context, req *agent.ModelRequest, next agent.ModelCallHandler) (*agent.ModelResponse, error) {
			req = req.Clone()
			if req.SystemPrompt != "" {
				req.SystemPrompt += "\n\n" + writeTodosPrompt
			} else {
				req.SystemPrompt = writeTodosPrompt
			}
			return next(ctx, req)
		},
		// the tool result only confirms; the parsed list is persisted into
		// state here so hooks and subagents can read it
		WrapToolCall: func(ctx context.Context, req *agent.ToolCallRequest, next agent.ToolCallHandler) (*agent.ToolCallResponse, error) {
			resp, err := next(ctx, req)
			if err != nil || req.Call.Function.Name != writeTodosToolName {
				return resp, err
			}
			var args writeTodosArguments
			if uerr := sonic.UnmarshalString(req.Call.Function.Arguments, &args); uerr != nil {
				return resp, nil
			}
			if resp == nil {
				resp = &agent.ToolCallResponse{}
			}
			if resp.Update == nil {
				resp.Update = graph.State{}
			}
			resp.Update[StateKeyTodos] = args.Todos
			return resp, nil
		},
	}, nil
}

// Todos reads the current todo list from agent state.
func Todos(s graph.State) []TODO {
	todos, _ := s[StateKeyTodos].([]TODO)
	return todos
}
