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

package model

import (
	"context"

	"github.com/eino-contrib/jsonschema"

	"github.com/cloudwego/agentkit/schema"
)

// ResponseFormat asks a model for provider-native structured output
// conforming to a JSON schema.
type ResponseFormat struct {
	Name   string
	Schema *jsonschema.Schema
	Strict bool
}

// Options are the per-call options of a chat model.
type Options struct {
	Tools          []*schema.ToolInfo
	ToolChoice     *schema.ToolChoice
	ResponseFormat *ResponseFormat

	// Extra carries provider-specific settings, e.g. temperature.
	Extra map[string]any
}

// Option configures one model call.
type Option func(*Options)

// WithTools binds tools the model may call.
func WithTools(tools []*schema.ToolInfo) Option {
	return func(o *Options) {
		o.Tools = tools
	}
}

// WithToolChoice controls whether the model must call tools.
func WithToolChoice(tc schema.ToolChoice) Option {
	return func(o *Options) {
		o.ToolChoice = &tc
	}
}

// WithResponseFormat requests provider-native structured output.
func WithResponseFormat(rf *ResponseFormat) Option {
	return func(o *Options) {
		o.ResponseFormat = rf
	}
}

// WithExtra merges provider-specific settings into the call.
func WithExtra(extra map[string]any) Option {
	return func(o *Options) {
		if o.Extra == nil {
			o.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			o.Extra[k] = v
		}
	}
}

// GetOptions folds a list of options into an Options struct.
func GetOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ChatModel is a tool-calling chat model.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...Option) (*schema.StreamReader[*schema.Message], error)
}

// Profile describes a model's identity and capabilities.
type Profile struct {
	Provider string
	Model    string

	// StructuredOutput reports whether the provider supports native
	// JSON-schema constrained responses.
	StructuredOutput bool
}

// ProfiledChatModel is a ChatModel that can describe its capabilities.
// Capability-dependent behavior (e.g. structured output strategy
// detection) degrades gracefully when a model does not implement it.
type ProfiledChatModel interface {
	ChatModel
	Profile() *Profile
}
