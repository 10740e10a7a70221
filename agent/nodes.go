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
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// Graph node keys of the agent loop.
const (
	nodeModel = "model"
	nodeTools = "tools"
)

type toolEntry struct {
	tool         tool.BaseTool
	info         *schema.ToolInfo
	returnDirect bool
}

// builder assembles an agent from a validated config.
type builder struct {
	conf           *Config
	responseFormat ResponseFormat
	bindings       map[string]*OutputToolBinding
	registry       map[string]toolEntry
	defaultTools   []tool.BaseTool
	modelChain     ModelCallMiddleware
	toolChain      ToolCallMiddleware
}

func messagesOf(s graph.State) []*schema.Message {
	msgs, _ := s[StateKeyMessages].([]*schema.Message)
	return msgs
}

func jumpOf(s graph.State) string {
	j, _ := s[StateKeyJumpTo].(string)
	return j
}

// lastAIMessage returns the most recent assistant message and its index.
func lastAIMessage(msgs []*schema.Message) (*schema.Message, int) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.Assistant {
			return msgs[i], i
		}
	}
	return nil, -1
}

func (b *builder) modelNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (graph.State, error) {
		req := &ModelRequest{
			Model:          b.conf.Model,
			SystemPrompt:   b.conf.SystemPrompt,
			Messages:       messagesOf(s),
			Tools:          append([]tool.BaseTool(nil), b.defaultTools...),
			ToolChoice:     b.conf.ToolChoice,
			ResponseFormat: b.responseFormat,
			ModelSettings:  b.conf.ModelSettings,
			State:          s,
		}

		var resp *ModelResponse
		var err error
		if b.modelChain != nil {
			resp, err = b.modelChain(ctx, req, b.baseModelHandler)
		} else {
			resp, err = b.baseModelHandler(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		resp = normalizeModelResponse(resp)

		update := graph.State{
			StateKeyMessages: resp.Result,
			StateKeyJumpTo:   nil,
		}
		if resp.StructuredResponse != nil {
			update[StateKeyStructuredResponse] = resp.StructuredResponse
		}
		return update, nil
	}
}

func (b *builder) baseModelHandler(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
	opts, effective, err := bindModelOptions(ctx, req, b.registry, b.bindings)
	if err != nil {
		return nil, err
	}

	input := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		input = append(input, schema.SystemMessage(req.SystemPrompt))
	}
	input = append(input, req.Messages...)

	var out *schema.Message
	if graph.MessagesStreaming(ctx) {
		sr, serr := req.Model.Stream(ctx, input, opts...)
		if serr != nil {
			return nil, serr
		}
		var chunks []*schema.Message
		for {
			chunk, rerr := sr.Recv()
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					break
				}
				sr.Close()
				return nil, rerr
			}
			graph.EmitMessageChunk(ctx, chunk)
			chunks = append(chunks, chunk)
		}
		if out, err = schema.ConcatMessages(chunks); err != nil {
			return nil, err
		}
	} else {
		if out, err = req.Model.Generate(ctx, input, opts...); err != nil {
			return nil, err
		}
	}

	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	return handleModelOutput(out, effective, b.bindings)
}

func (b *builder) toolNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (graph.State, error) {
		in, ok := graph.SendInput(ctx).(*ToolCallRequest)
		if !ok || in == nil {
			return nil, errors.New("tools node executed without a tool call input")
		}
		req := &ToolCallRequest{Call: in.Call, State: s}

		var resp *ToolCallResponse
		var err error
		if b.toolChain != nil {
			resp, err = b.toolChain(ctx, req, b.baseToolHandler)
		} else {
			resp, err = b.baseToolHandler(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		resp = normalizeToolCallResponse(resp)

		update := graph.State{StateKeyJumpTo: nil}
		for k, v := range resp.Update {
			if k == StateKeyMessages {
				return nil, errors.New("tool call responses must return messages via Message, not Update")
			}
			update[k] = v
		}
		if resp.Message != nil {
			update[StateKeyMessages] = []*schema.Message{resp.Message}
		}
		if resp.JumpTo != "" {
			switch resp.JumpTo {
			case JumpToModel, JumpToTools, JumpToEnd:
				update[StateKeyJumpTo] = resp.JumpTo
			default:
				return nil, fmt.Errorf("tool call returned unknown jump target %q", resp.JumpTo)
			}
		}
		return update, nil
	}
}

func (b *builder) baseToolHandler(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error) {
	name := req.Call.Function.Name
	entry, ok := b.registry[name]
	if !ok {
		return nil, fmt.Errorf("tool call for unregistered tool %q", name)
	}
	inv, ok := entry.tool.(tool.InvokableTool)
	if !ok {
		return nil, fmt.Errorf("tool %q is not invokable", name)
	}

	result, err := inv.InvokableRun(ctx, req.Call.Function.Arguments)
	if err != nil {
		if graph.IsInterrupt(err) {
			return nil, err
		}
		// feed execution failures back to the model instead of failing the run
		content := fmt.Sprintf("Error: %s\n Please fix your mistakes.", err.Error())
		return NewToolCallResponse(schema.ToolMessage(content, req.Call.ID, schema.WithToolName(name))), nil
	}
	return NewToolCallResponse(schema.ToolMessage(result, req.Call.ID, schema.WithToolName(name))), nil
}

// hookNode wraps a middleware hook. The jump field resets on every hook
// unless the hook itself writes it, so stale jumps never leak into the
// next routing decision.
func hookNode(name string, fn HookFunc) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (graph.State, error) {
		update, err := fn(ctx, s)
		if err != nil {
			return nil, err
		}
		if update == nil {
			update = graph.State{}
		}
		if j, ok := update[StateKeyJumpTo]; ok {
			if js, _ := j.(string); js != "" {
				switch js {
				case JumpToModel, JumpToTools, JumpToEnd:
				default:
					return nil, fmt.Errorf("hook %q wrote unknown jump target %q", name, js)
				}
			}
		} else {
			update[StateKeyJumpTo] = nil
		}
		return update, nil
	}
}
