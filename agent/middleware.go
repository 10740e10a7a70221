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
	"fmt"

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/tool"
)

// Jump targets a middleware hook may route to by writing the jump field.
const (
	// JumpToModel re-enters the model loop at its entry.
	JumpToModel = "model"
	// JumpToTools goes straight to tool execution.
	JumpToTools = "tools"
	// JumpToEnd leaves the loop towards the agent's exit.
	JumpToEnd = "end"
)

// HookFunc is a state hook running as its own graph node.
type HookFunc func(ctx context.Context, s graph.State) (graph.State, error)

// NodeHook is a hook that participates in the model loop and may jump.
type NodeHook struct {
	Fn HookFunc

	// CanJumpTo declares the jump targets this hook may write into the
	// jump field: JumpToModel, JumpToTools, JumpToEnd. Routing edges are
	// only wired for declared targets.
	CanJumpTo []string
}

// ModelCallHandler executes a model request and returns the full response.
type ModelCallHandler func(ctx context.Context, req *ModelRequest) (*ModelResponse, error)

// ModelCallMiddleware wraps a model call. It may rewrite the request,
// short-circuit, retry, or post-process the response.
type ModelCallMiddleware func(ctx context.Context, req *ModelRequest, next ModelCallHandler) (*ModelResponse, error)

// ToolCallHandler executes a single tool call.
type ToolCallHandler func(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error)

// ToolCallMiddleware wraps a tool call.
type ToolCallMiddleware func(ctx context.Context, req *ToolCallRequest, next ToolCallHandler) (*ToolCallResponse, error)

// Middleware extends an agent. All capabilities are declared as data;
// only declared hooks get graph nodes and routing edges.
type Middleware struct {
	// Name must be unique within an agent.
	Name string

	// StateSchema declares extra state fields this middleware reads and
	// writes. A field name already declared by the agent or another
	// middleware is a configuration error.
	StateSchema []graph.FieldSpec

	// Tools are registered into the agent's tool node and offered to the
	// model by default.
	Tools []tool.BaseTool

	// BeforeAgent runs once before the model loop.
	BeforeAgent HookFunc

	// BeforeModel runs before every model call; AfterModel after.
	BeforeModel *NodeHook
	AfterModel  *NodeHook

	// AfterAgent runs once after the model loop exits.
	AfterAgent HookFunc

	// WrapModelCall and WrapToolCall compose onion-style around the base
	// handlers: the first middleware in the agent's list is outermost.
	WrapModelCall ModelCallMiddleware
	WrapToolCall  ToolCallMiddleware
}

func validateMiddlewares(mws []*Middleware) error {
	names := make(map[string]bool, len(mws))
	for i, mw := range mws {
		if mw == nil {
			return fmt.Errorf("middleware at index %d is nil", i)
		}
		if mw.Name == "" {
			return fmt.Errorf("middleware at index %d has no name", i)
		}
		if names[mw.Name] {
			return fmt.Errorf("duplicate middleware name %q", mw.Name)
		}
		names[mw.Name] = true
		if mw.BeforeModel != nil && mw.BeforeModel.Fn == nil {
			return fmt.Errorf("middleware %q declares BeforeModel with nil func", mw.Name)
		}
		if mw.AfterModel != nil && mw.AfterModel.Fn == nil {
			return fmt.Errorf("middleware %q declares AfterModel with nil func", mw.Name)
		}
		for _, hook := range []*NodeHook{mw.BeforeModel, mw.AfterModel} {
			if hook == nil {
				continue
			}
			for _, dst := range hook.CanJumpTo {
				switch dst {
				case JumpToModel, JumpToTools, JumpToEnd:
				default:
					return fmt.Errorf("middleware %q declares unknown jump target %q", mw.Name, dst)
				}
			}
		}
	}
	return nil
}

// hook node keys follow "<middleware>.<hook>".
func beforeAgentKey(mw *Middleware) string { return mw.Name + ".before_agent" }
func beforeModelKey(mw *Middleware) string { return mw.Name + ".before_model" }
func afterModelKey(mw *Middleware) string  { return mw.Name + ".after_model" }
func afterAgentKey(mw *Middleware) string  { return mw.Name + ".after_agent" }
