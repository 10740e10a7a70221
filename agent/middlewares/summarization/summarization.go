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

// Package summarization compresses long conversations before each model
// call: when the token count of the pending request exceeds the trigger,
// older messages are summarized through a model into a single system
// message and only the recent tail is kept verbatim.
package summarization

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
)

// MiddlewareName is the registered name of the summarization middleware.
const MiddlewareName = "summarization"

const (
	defaultMaxTokens   = 170000
	defaultKeepLast    = 6
	tiktokenEncoding   = "cl100k_base"
	summaryHeaderLabel = "## Summary of earlier conversation\n\n"
)

// TokenCounterFunc estimates the token count of a message list.
type TokenCounterFunc func(msgs []*schema.Message) int

// Config configures the summarization middleware.
type Config struct {
	// Model generates the summaries. Optional, the request's own model
	// by default.
	Model model.ChatModel

	// MaxTokens is the trigger: summarization runs when the pending
	// request exceeds it. Optional, 170000 by default.
	MaxTokens int

	// KeepLastMessages is how many trailing messages survive verbatim.
	// Optional, 6 by default.
	KeepLastMessages int

	// TokenCounter overrides token estimation. Optional; the default
	// uses tiktoken's cl100k_base encoding, falling back to a 4 chars
	// per token heuristic when the encoding is unavailable.
	TokenCounter TokenCounterFunc
}

// New builds the summarization middleware.
func New(config *Config) (*agent.Middleware, error) {
	if config == nil {
		config = &Config{}
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	keep := config.KeepLastMessages
	if keep <= 0 {
		keep = defaultKeepLast
	}
	counter := config.TokenCounter
	if counter == nil {
		counter = defaultTokenCounter()
	}

	return &agent.Middleware{
		Name: MiddlewareName,
		WrapModelCall: func(ctx context.Context, req *agent.ModelRequest, next agent.ModelCallHandler) (*agent.ModelResponse, error) {
			if counter(req.Messages) <= maxTokens {
				return next(ctx, req)
			}

			cutoff := len(req.Messages) - keep
			// never split an assistant tool call from its results
			for cutoff > 0 && req.Messages[cutoff].Role == schema.Tool {
				cutoff--
			}
			if cutoff <= 0 {
				return next(ctx, req)
			}

			m := config.Model
			if m == nil {
				m = req.Model
			}
			summary, err := summarize(ctx, m, req.Messages[:cutoff])
			if err != nil {
				return nil, fmt.Errorf("summarize conversation: %w", err)
			}

			req = req.Clone()
			req.Messages = append([]*schema.Message{summary}, req.Messages[cutoff:]...)
			return next(ctx, req)
		},
	}, nil
}

func summarize(ctx context.Context, m model.ChatModel, msgs []*schema.Message) (*schema.Message, error) {
	input := make([]*schema.Message, 0, len(msgs)+2)
	input = append(input, schema.SystemMessage(summarySystemPrompt))
	input = append(input, msgs...)
	input = append(input, schema.UserMessage(summaryInstruction))

	resp, err := m.Generate(ctx, input)
	if err != nil {
		return nil, err
	}
	return schema.SystemMessage(summaryHeaderLabel + resp.Content), nil
}

// defaultTokenCounter counts with tiktoken, loaded once. A missing
// encoding file degrades to the character heuristic instead of failing
// the run.
func defaultTokenCounter() TokenCounterFunc {
	var once sync.Once
	var enc *tiktoken.Tiktoken

	return func(msgs []*schema.Message) int {
		once.Do(func() {
			enc, _ = tiktoken.GetEncoding(tiktokenEncoding)
		})
		total := 0
		for _, msg := range msgs {
			text := msg.Content
			for _, tc := range msg.ToolCalls {
				text += tc.Function.Name + tc.Function.Arguments
			}
			if enc != nil {
				total += len(enc.Encode(text, nil, nil))
			} else {
				total += (len(text) + 3) / 4
			}
		}
		return total
	}
}
