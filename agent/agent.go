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

// Package agent builds middleware-composable agents on top of the graph
// engine: a model loop with tool execution, structured output handling,
// interrupt/resume and a checkpointed conversation state.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

func init() {
	schema.RegisterName[*ToolCallRequest]("_agentkit_tool_call_request")
}

// ToolsConfig declares the agent's client-side tools.
type ToolsConfig struct {
	Tools []tool.BaseTool

	// ReturnDirectly lists tools whose results end the run immediately
	// instead of looping back to the model.
	ReturnDirectly map[string]bool
}

// Config is the agent configuration.
type Config struct {
	// Model is the chat model driving the loop. Required.
	Model model.ChatModel

	ToolsConfig ToolsConfig

	SystemPrompt string

	// Middlewares extend the agent, in order: the first middleware's
	// hooks run first and its wrappers are outermost.
	Middlewares []*Middleware

	// ResponseFormat requests structured output. Accepts a *SchemaSpec or
	// *jsonschema.Schema (strategy auto-detected from the model), or an
	// explicit ProviderStrategy / ToolStrategy / AutoStrategy.
	ResponseFormat any

	// ToolChoice is the default tool choice of model calls.
	ToolChoice *schema.ToolChoice

	// ModelSettings are provider-specific extras passed to every call.
	ModelSettings map[string]any

	// CheckpointStore enables threads, interrupts, resume and history.
	CheckpointStore graph.CheckpointStore

	// MaxIterations caps graph supersteps per run. Defaults to 10000.
	MaxIterations int
}

// Agent is a compiled agent.
type Agent struct {
	runnable *graph.Runnable
	conf     *Config
}

// New builds an agent: it validates the configuration, resolves the
// state schema across middlewares, composes the wrapper chains, wires
// the loop graph and compiles it.
func New(ctx context.Context, conf *Config) (*Agent, error) {
	if conf == nil || conf.Model == nil {
		return nil, errors.New("agent config requires a model")
	}
	if err := validateMiddlewares(conf.Middlewares); err != nil {
		return nil, err
	}

	rf, err := convertResponseFormat(conf.ResponseFormat)
	if err != nil {
		return nil, err
	}

	b := &builder{
		conf:           conf,
		responseFormat: rf,
		bindings:       createStructuredOutputTools(rf),
	}

	if err = b.buildToolRegistry(ctx); err != nil {
		return nil, err
	}

	var modelMWs []ModelCallMiddleware
	var toolMWs []ToolCallMiddleware
	for _, mw := range conf.Middlewares {
		if mw.WrapModelCall != nil {
			modelMWs = append(modelMWs, mw.WrapModelCall)
		}
		if mw.WrapToolCall != nil {
			toolMWs = append(toolMWs, mw.WrapToolCall)
		}
	}
	b.modelChain = ChainModelCallMiddlewares(modelMWs)
	b.toolChain = ChainToolCallMiddlewares(toolMWs)

	stateSchema, err := ResolveStateSchemas(conf.Middlewares)
	if err != nil {
		return nil, err
	}

	g, err := b.buildGraph(stateSchema)
	if err != nil {
		return nil, err
	}

	maxSteps := conf.MaxIterations
	if maxSteps <= 0 {
		maxSteps = 10000
	}
	compileOpts := []graph.CompileOption{graph.WithMaxSteps(maxSteps)}
	if conf.CheckpointStore != nil {
		compileOpts = append(compileOpts, graph.WithCheckpointStore(conf.CheckpointStore))
	}
	runnable, err := g.Compile(compileOpts...)
	if err != nil {
		return nil, err
	}

	return &Agent{runnable: runnable, conf: conf}, nil
}

// buildToolRegistry collects config and middleware tools, rejecting
// duplicate names and collisions with structured output tools.
func (b *builder) buildToolRegistry(ctx context.Context) error {
	b.registry = make(map[string]toolEntry)

	add := func(t tool.BaseTool, source string) error {
		info, err := t.Info(ctx)
		if err != nil {
			return fmt.Errorf("tool info (%s): %w", source, err)
		}
		if _, ok := b.registry[info.Name]; ok {
			return fmt.Errorf("duplicate tool name %q (%s)", info.Name, source)
		}
		if _, ok := b.bindings[info.Name]; ok {
			return fmt.Errorf("tool name %q collides with a structured output schema (%s)", info.Name, source)
		}
		b.registry[info.Name] = toolEntry{
			tool:         t,
			info:         info,
			returnDirect: b.conf.ToolsConfig.ReturnDirectly[info.Name],
		}
		b.defaultTools = append(b.defaultTools, t)
		return nil
	}

	for _, t := range b.conf.ToolsConfig.Tools {
		if err := add(t, "agent tools"); err != nil {
			return err
		}
	}
	for _, mw := range b.conf.Middlewares {
		for _, t := range mw.Tools {
			if err := add(t, "middleware "+mw.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeInput converts the accepted input shapes into graph input.
func normalizeInput(input any) (any, error) {
	switch in := input.(type) {
	case *graph.Command:
		return in, nil
	case graph.State:
		return in, nil
	case *schema.Message:
		return graph.State{StateKeyMessages: []*schema.Message{in}}, nil
	case []*schema.Message:
		return graph.State{StateKeyMessages: in}, nil
	case string:
		return graph.State{StateKeyMessages: []*schema.Message{schema.UserMessage(in)}}, nil
	default:
		return nil, fmt.Errorf("unsupported agent input type %T", input)
	}
}

// Invoke runs the agent to completion (or the next interrupt) and
// returns the final state. Input may be a user message string, a
// message, a message slice, a full initial State, or a *graph.Command
// resuming an interrupted thread.
func (a *Agent) Invoke(ctx context.Context, input any, opts ...graph.Option) (graph.State, error) {
	in, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	return a.runnable.Invoke(ctx, in, opts...)
}

// Stream runs the agent asynchronously, emitting message chunks, state
// snapshots and custom payloads.
func (a *Agent) Stream(ctx context.Context, input any, opts ...graph.Option) *graph.AsyncIterator[*graph.StreamEvent] {
	in, err := normalizeInput(input)
	if err != nil {
		iter, gen := graph.NewAsyncIteratorPair[*graph.StreamEvent]()
		gen.Send(&graph.StreamEvent{Err: err})
		gen.Close()
		return iter
	}
	return a.runnable.Stream(ctx, in, opts...)
}

// GetState returns the latest snapshot of a thread.
func (a *Agent) GetState(ctx context.Context, threadID string) (*graph.StateSnapshot, error) {
	return a.runnable.GetState(ctx, threadID)
}

// GetStateHistory returns all snapshots of a thread, newest first.
func (a *Agent) GetStateHistory(ctx context.Context, threadID string) ([]*graph.StateSnapshot, error) {
	return a.runnable.GetStateHistory(ctx, threadID)
}

// UpdateState applies a state patch to a thread outside of a run.
func (a *Agent) UpdateState(ctx context.Context, threadID string, update graph.State, opts ...graph.UpdateOption) (string, error) {
	return a.runnable.UpdateState(ctx, threadID, update, opts...)
}
