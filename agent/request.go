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
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// ModelRequest is the mutable input of one model call, rewritten by
// wrap-model-call middlewares before the model is bound and invoked.
type ModelRequest struct {
	Model        model.ChatModel
	SystemPrompt string
	Messages     []*schema.Message

	// Tools are the client-side tools offered for this call. They must be
	// registered with the agent; middlewares may narrow or reorder them
	// but not invent new ones.
	Tools []tool.BaseTool

	// ProviderTools are provider built-ins passed through untouched.
	ProviderTools []map[string]any

	ToolChoice *schema.ToolChoice

	// ResponseFormat is the structured output strategy for this call.
	ResponseFormat ResponseFormat

	// ModelSettings are provider-specific extras, e.g. temperature.
	ModelSettings map[string]any

	// State is a read-only view of the agent state at call time.
	State graph.State
}

// Clone returns a copy of the request safe for a middleware to rewrite.
// Slices are copied shallowly; messages themselves are shared.
func (r *ModelRequest) Clone() *ModelRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Messages = append([]*schema.Message(nil), r.Messages...)
	c.Tools = append([]tool.BaseTool(nil), r.Tools...)
	c.ProviderTools = append([]map[string]any(nil), r.ProviderTools...)
	if r.ModelSettings != nil {
		c.ModelSettings = make(map[string]any, len(r.ModelSettings))
		for k, v := range r.ModelSettings {
			c.ModelSettings[k] = v
		}
	}
	return &c
}

// ModelResponse is the normalized result of a model call.
type ModelResponse struct {
	// Result contains the assistant message, plus any synthetic tool
	// messages produced by structured output handling.
	Result []*schema.Message

	// StructuredResponse is the parsed structured output, when present.
	StructuredResponse any
}

// NewModelResponse normalizes a bare assistant message into a full
// response. Middlewares synthesizing messages should use it so every
// chain boundary sees the same shape.
func NewModelResponse(msg *schema.Message) *ModelResponse {
	return &ModelResponse{Result: []*schema.Message{msg}}
}

// normalizeModelResponse guarantees the chain invariant at a boundary.
func normalizeModelResponse(resp *ModelResponse) *ModelResponse {
	if resp == nil {
		return &ModelResponse{}
	}
	return resp
}

// AIMessage returns the assistant message of the response, or nil.
func (r *ModelResponse) AIMessage() *schema.Message {
	if r == nil {
		return nil
	}
	for _, m := range r.Result {
		if m.Role == schema.Assistant {
			return m
		}
	}
	return nil
}

// ToolCallRequest is the input of one tool call execution. It is also
// the Send payload fanned out by the routing layer, one per call.
type ToolCallRequest struct {
	Call  schema.ToolCall
	State graph.State
}

// TaskID keeps interrupts raised inside this call stable across resume.
func (r *ToolCallRequest) TaskID() string {
	return r.Call.ID
}

// ToolCallResponse is the normalized result of a tool call: a tool
// message, plus an optional state update and jump.
type ToolCallResponse struct {
	Message *schema.Message

	// Update is merged into the agent state alongside the tool message.
	Update graph.State

	// JumpTo routes the loop after this tool call: JumpToModel,
	// JumpToTools or JumpToEnd. Empty means normal routing.
	JumpTo string
}

// NewToolCallResponse normalizes a bare tool message.
func NewToolCallResponse(msg *schema.Message) *ToolCallResponse {
	return &ToolCallResponse{Message: msg}
}

func normalizeToolCallResponse(resp *ToolCallResponse) *ToolCallResponse {
	if resp == nil {
		return &ToolCallResponse{}
	}
	return resp
}
