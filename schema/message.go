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

package schema

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// RoleType is the role of a message author.
type RoleType string

const (
	// System is the role of a system message, usually used to set the behavior of the assistant.
	System RoleType = "system"
	// User is the role of a user message.
	User RoleType = "user"
	// Assistant is the role of an assistant message, usually the output of a chat model.
	Assistant RoleType = "assistant"
	// Tool is the role of a tool result message.
	Tool RoleType = "tool"
)

// FunctionCall is the function call requested by a chat model.
type FunctionCall struct {
	Name string `json:"name,omitempty"`
	// Arguments is the arguments of the function call, in JSON format.
	Arguments string `json:"arguments,omitempty"`
}

// ToolCall is a single tool call emitted by a chat model.
type ToolCall struct {
	// Index is set for streaming chunks, identifying which tool call the chunk belongs to.
	Index *int `json:"index,omitempty"`

	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`

	Extra map[string]any `json:"extra,omitempty"`
}

// TokenUsage reports token consumption of a model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseMeta carries provider metadata of a model response.
type ResponseMeta struct {
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Message is the unit of conversation between the user, the model and tools.
type Message struct {
	// ID identifies the message within a conversation. Assigned when absent.
	ID string `json:"id,omitempty"`

	Role    RoleType `json:"role"`
	Content string   `json:"content"`

	// Name is an optional author name.
	Name string `json:"name,omitempty"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	ResponseMeta *ResponseMeta  `json:"response_meta,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", m.Role, m.Content))
	for _, tc := range m.ToolCalls {
		sb.WriteString(fmt.Sprintf("\ntool_call: %s(%s)", tc.Function.Name, tc.Function.Arguments))
	}
	return sb.String()
}

// SystemMessage creates a system message.
func SystemMessage(content string) *Message {
	return &Message{Role: System, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) *Message {
	return &Message{Role: User, Content: content}
}

// AssistantMessage creates an assistant message with optional tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) *Message {
	return &Message{Role: Assistant, Content: content, ToolCalls: toolCalls}
}

type toolMessageOptions struct {
	toolName string
}

// ToolMessageOption configures ToolMessage.
type ToolMessageOption func(*toolMessageOptions)

// WithToolName sets the tool name of a tool result message.
func WithToolName(name string) ToolMessageOption {
	return func(o *toolMessageOptions) {
		o.toolName = name
	}
}

// ToolMessage creates a tool result message bound to a tool call ID.
func ToolMessage(content string, toolCallID string, opts ...ToolMessageOption) *Message {
	o := &toolMessageOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return &Message{Role: Tool, Content: content, ToolCallID: toolCallID, ToolName: o.toolName}
}

// ConcatMessages merges streaming message chunks into one complete message.
// All chunks must share the same role. Contents are concatenated in order,
// tool call chunks are merged by index, and the last non-nil ResponseMeta wins.
func ConcatMessages(msgs []*Message) (*Message, error) {
	if len(msgs) == 0 {
		return nil, errors.New("no messages to concat")
	}

	ret := &Message{Role: msgs[0].Role}

	var content strings.Builder
	var toolCalls []ToolCall
	// merged arguments per streaming tool call index
	argBuf := make(map[int]*strings.Builder)
	idxOf := make(map[int]int)

	for _, m := range msgs {
		if m == nil {
			return nil, errors.New("unexpected nil message chunk")
		}
		if m.Role != ret.Role {
			return nil, fmt.Errorf("cannot concat messages with different roles: %s, %s", ret.Role, m.Role)
		}
		content.WriteString(m.Content)

		if ret.ID == "" {
			ret.ID = m.ID
		}
		if m.Name != "" {
			ret.Name = m.Name
		}
		if m.ToolCallID != "" {
			ret.ToolCallID = m.ToolCallID
		}
		if m.ToolName != "" {
			ret.ToolName = m.ToolName
		}
		if m.ResponseMeta != nil {
			ret.ResponseMeta = m.ResponseMeta
		}

		for _, tc := range m.ToolCalls {
			if tc.Index == nil {
				toolCalls = append(toolCalls, tc)
				continue
			}
			pos, ok := idxOf[*tc.Index]
			if !ok {
				idxOf[*tc.Index] = len(toolCalls)
				pos = len(toolCalls)
				toolCalls = append(toolCalls, tc)
				argBuf[*tc.Index] = &strings.Builder{}
				argBuf[*tc.Index].WriteString(tc.Function.Arguments)
				continue
			}
			if tc.ID != "" {
				toolCalls[pos].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[pos].Function.Name = tc.Function.Name
			}
			argBuf[*tc.Index].WriteString(tc.Function.Arguments)
		}
	}

	for idx, buf := range argBuf {
		toolCalls[idxOf[idx]].Function.Arguments = buf.String()
		toolCalls[idxOf[idx]].Index = nil
	}

	ret.Content = content.String()
	ret.ToolCalls = toolCalls
	return ret, nil
}

// ConcatMessageStream drains a message stream and merges its chunks.
// The stream is closed before returning.
func ConcatMessageStream(s *StreamReader[*Message]) (*Message, error) {
	defer s.Close()

	var msgs []*Message
	for {
		msg, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return ConcatMessages(msgs)
}
