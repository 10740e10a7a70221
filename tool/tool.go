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

package tool

import (
	"context"

	"github.com/cloudwego/agentkit/schema"
)

// BaseTool exposes tool info for chat model intent recognition.
type BaseTool interface {
	Info(ctx context.Context) (*schema.ToolInfo, error)
}

// InvokableTool is a tool executable with JSON arguments.
type InvokableTool interface {
	BaseTool

	// InvokableRun calls the tool with arguments in JSON format.
	InvokableRun(ctx context.Context, argumentsInJSON string, opts ...Option) (string, error)
}

// Options are per-call tool options.
type Options struct {
	Extra map[string]any
}

// Option configures one tool call.
type Option func(*Options)

// WithExtra attaches extra values to a tool call.
func WithExtra(extra map[string]any) Option {
	return func(o *Options) {
		o.Extra = extra
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
