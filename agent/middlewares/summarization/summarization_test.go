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

package summarization

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
)

// summaryModel answers every generate call with a fixed summary and
// records the messages it was asked to compress.
type summaryModel struct {
	calls [][]*schema.Message
}

func (m *summaryModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls = append(m.calls, input)
	return schema.AssistantMessage("the gist of it", nil), nil
}

func (m *summaryModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{resp}), nil
}

func countMessages(msgs []*schema.Message) int { return len(msgs) }

func conversation(n int) []*schema.Message {
	msgs := make([]*schema.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, schema.UserMessage("question"))
		} else {
			msgs = append(msgs, schema.AssistantMessage("answer", nil))
		}
	}
	return msgs
}

func TestBelowThresholdPassesThrough(t *testing.T) {
	mw, err := New(&Config{MaxTokens: 100, TokenCounter: countMessages})
	assert.NoError(t, err)
	assert.Equal(t, MiddlewareName, mw.Name)

	msgs := conversation(10)
	_, err = mw.WrapModelCall(context.Background(), &agent.ModelRequest{Messages: msgs},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			assert.Equal(t, msgs, req.Messages)
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)
}

func TestSummarizesWhenOverThreshold(t *testing.T) {
	sm := &summaryModel{}
	mw, err := New(&Config{Model: sm, MaxTokens: 4, KeepLastMessages: 3, TokenCounter: countMessages})
	assert.NoError(t, err)

	msgs := conversation(10)
	_, err = mw.WrapModelCall(context.Background(), &agent.ModelRequest{Messages: msgs},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			// summary plus the kept tail
			assert.Len(t, req.Messages, 4)
			assert.Equal(t, schema.System, req.Messages[0].Role)
			assert.Equal(t, summaryHeaderLabel+"the gist of it", req.Messages[0].Content)
			assert.Equal(t, msgs[7:], req.Messages[1:])
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)

	// the summarizer saw the head of the conversation framed by its own
	// system prompt and instruction
	assert.Len(t, sm.calls, 1)
	input := sm.calls[0]
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, msgs[:7], input[1:len(input)-1])
	assert.Equal(t, schema.User, input[len(input)-1].Role)
}

func TestCutoffRespectsToolResults(t *testing.T) {
	sm := &summaryModel{}
	mw, err := New(&Config{Model: sm, MaxTokens: 1, KeepLastMessages: 2, TokenCounter: countMessages})
	assert.NoError(t, err)

	call := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "c1", Function: schema.FunctionCall{Name: "search", Arguments: `{}`}},
	})
	msgs := []*schema.Message{
		schema.UserMessage("start"),
		schema.AssistantMessage("ok", nil),
		call,
		schema.ToolMessage("result a", "c1"),
		schema.ToolMessage("result b", "c1"),
		schema.AssistantMessage("done", nil),
	}

	_, err = mw.WrapModelCall(context.Background(), &agent.ModelRequest{Messages: msgs},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			// the cutoff moved back so the tool call stays with its results
			assert.Equal(t, summaryHeaderLabel+"the gist of it", req.Messages[0].Content)
			assert.Equal(t, msgs[2:], req.Messages[1:])
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)
}

func TestAllMessagesInsideKeepWindow(t *testing.T) {
	sm := &summaryModel{}
	mw, err := New(&Config{Model: sm, MaxTokens: 1, KeepLastMessages: 10, TokenCounter: countMessages})
	assert.NoError(t, err)

	msgs := conversation(4)
	_, err = mw.WrapModelCall(context.Background(), &agent.ModelRequest{Messages: msgs},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			assert.Equal(t, msgs, req.Messages)
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)
	assert.Empty(t, sm.calls)
}

func TestFallsBackToRequestModel(t *testing.T) {
	sm := &summaryModel{}
	mw, err := New(&Config{MaxTokens: 2, KeepLastMessages: 2, TokenCounter: countMessages})
	assert.NoError(t, err)

	msgs := conversation(8)
	_, err = mw.WrapModelCall(context.Background(), &agent.ModelRequest{Model: sm, Messages: msgs},
		func(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
			return &agent.ModelResponse{}, nil
		})
	assert.NoError(t, err)
	assert.Len(t, sm.calls, 1)
}

func TestDefaultTokenCounter(t *testing.T) {
	counter := defaultTokenCounter()

	short := []*schema.Message{schema.UserMessage("hi")}
	long := []*schema.Message{schema.UserMessage(strings.Repeat("word ", 1000))}
	assert.Less(t, counter(short), counter(long))

	// tool call payloads count too
	withCall := []*schema.Message{schema.AssistantMessage("", []schema.ToolCall{
		{ID: "c1", Function: schema.FunctionCall{Name: "search", Arguments: strings.Repeat("x", 400)}},
	})}
	assert.Greater(t, counter(withCall), 0)
}
