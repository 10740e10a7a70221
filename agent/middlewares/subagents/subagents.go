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

// Package subagents gives an agent a task tool that delegates isolated
// multi-step work to named sub-agents with their own context windows.
package subagents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/slongfield/pyfmt"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// MiddlewareName is the registered name of the subagents middleware.
const MiddlewareName = "subagents"

const (
	taskToolName     = "task"
	generalAgentName = "general-purpose"
)

// excludedStateKeys are not inherited by a sub-agent: it starts with its
// own conversation, plan and output.
var excludedStateKeys = []string{
	agent.StateKeyMessages,
	agent.StateKeyJumpTo,
	agent.StateKeyStructuredResponse,
	"todos",
}

const defaultSubAgentPrompt = "In order to complete the objective that the user asks of you, you have access to a number of standard tools."

// SubAgent declares one delegable agent.
type SubAgent struct {
	// Name is the subagent_type the model selects. Must be unique.
	Name string
	// Description tells the orchestrating model when to delegate here.
	Description string

	SystemPrompt string

	// Tools of the sub-agent. Defaults to the middleware's DefaultTools.
	Tools []tool.BaseTool

	// Model of the sub-agent. Defaults to the middleware's DefaultModel.
	Model model.ChatModel

	// Middlewares of the sub-agent, appended to DefaultMiddlewares.
	Middlewares []*agent.Middleware
}

// Config configures the subagents middleware.
type Config struct {
	// DefaultModel drives sub-agents that declare no model. Required.
	DefaultModel model.ChatModel

	// DefaultTools are offered to sub-agents that declare no tools, and
	// to the general-purpose agent.
	DefaultTools []tool.BaseTool

	// DefaultMiddlewares are applied to every sub-agent.
	DefaultMiddlewares []*agent.Middleware

	SubAgents []*SubAgent

	// WithoutGeneralPurposeAgent disables the built-in fallback agent.
	WithoutGeneralPurposeAgent bool

	// MaxIterations caps each sub-agent run.
	MaxIterations int
}

type compiledSubAgent struct {
	agent       *agent.Agent
	description string
}

// New builds the subagents middleware: it compiles every declared
// sub-agent up front and exposes them behind a single task tool.
func New(ctx context.Context, config *Config) (*agent.Middleware, error) {
	if config == nil || config.DefaultModel == nil {
		return nil, errors.New("subagents middleware requires a default model")
	}

	compiled := make(map[string]*compiledSubAgent, len(config.SubAgents)+1)
	var order []string

	if !config.WithoutGeneralPurposeAgent {
		general, err := compile(ctx, config, &SubAgent{
			Name:         generalAgentName,
			Description:  "use this agent for general purpose tasks",
			SystemPrompt: defaultSubAgentPrompt,
		})
		if err != nil {
			return nil, fmt.Errorf("compile general-purpose agent: %w", err)
		}
		compiled[generalAgentName] = general
		order = append(order, generalAgentName)
	}

	for _, sa := range config.SubAgents {
		if sa.Name == "" {
			return nil, errors.New("sub-agent requires a name")
		}
		if _, ok := compiled[sa.Name]; ok {
			return nil, fmt.Errorf("duplicate sub-agent name %q", sa.Name)
		}
		c, err := compile(ctx, config, sa)
		if err != nil {
			return nil, fmt.Errorf("compile sub-agent %q: %w", sa.Name, err)
		}
		compiled[sa.Name] = c
		order = append(order, sa.Name)
	}

	desc, err := taskToolDescriptionFor(compiled, order)
	if err != nil {
		return nil, err
	}
	t := &taskTool{desc: desc, subAgents: compiled}

	return &agent.Middleware{
		Name:  MiddlewareName,
		Tools: []tool.BaseTool{t},
		// task calls run here instead of the plain tool path so the
		// sub-agent can inherit the shareable part of the parent state
		WrapToolCall: func(ctx context.Context, req *agent.ToolCallRequest, next agent.ToolCallHandler) (*agent.ToolCallResponse, error) {
			if req.Call.Function.Name != taskToolName {
				return next(ctx, req)
			}
			result, rerr := t.run(ctx, req.Call.Function.Arguments, req.State)
			if rerr != nil {
				return nil, rerr
			}
			return agent.NewToolCallResponse(
				schema.ToolMessage(result, req.Call.ID, schema.WithToolName(taskToolName))), nil
		},
	}, nil
}

func compile(ctx context.Context, config *Config, sa *SubAgent) (*compiledSubAgent, error) {
	m := sa.Model
	if m == nil {
		m = config.DefaultModel
	}
	tools := sa.Tools
	if tools == nil {
		tools = config.DefaultTools
	}
	mws := append(append([]*agent.Middleware(nil), config.DefaultMiddlewares...), sa.Middlewares...)

	a, err := agent.New(ctx, &agent.Config{
		Model:         m,
		ToolsConfig:   agent.ToolsConfig{Tools: tools},
		SystemPrompt:  sa.SystemPrompt,
		Middlewares:   mws,
		MaxIterations: config.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	return &compiledSubAgent{agent: a, description: sa.Description}, nil
}

type taskArguments struct {
	Prompt       string `json:"prompt" jsonschema:"description=The task for the agent to perform"`
	SubagentType string `json:"subagent_type,omitempty" jsonschema:"description=The type of agent to use (default general-purpose)"`
}

type taskTool struct {
	desc      string
	subAgents map[string]*compiledSubAgent
}

func (t *taskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	var args taskArguments
	return &schema.ToolInfo{
		Name:             taskToolName,
		Desc:             t.desc,
		ParamsJSONSchema: tool.ReflectSchema(&args),
	}, nil
}

func (t *taskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return t.run(ctx, argumentsInJSON, nil)
}

func (t *taskTool) run(ctx context.Context, argumentsInJSON string, parentState graph.State) (string, error) {
	var args taskArguments
	if err := sonic.UnmarshalString(argumentsInJSON, &args); err != nil {
		return "", fmt.Errorf("unmarshal task tool arguments: %w", err)
	}
	if args.SubagentType == "" {
		args.SubagentType = generalAgentName
	}
	sub, ok := t.subAgents[args.SubagentType]
	if !ok {
		return fmt.Sprintf("Error: Unknown subagent type: %s", args.SubagentType), nil
	}

	initial := graph.State{}
	for k, v := range parentState {
		initial[k] = v
	}
	for _, k := range excludedStateKeys {
		delete(initial, k)
	}
	initial[agent.StateKeyMessages] = []*schema.Message{schema.UserMessage(args.Prompt)}

	final, err := sub.agent.Invoke(ctx, initial)
	if err != nil {
		return "", err
	}
	msgs, _ := final[agent.StateKeyMessages].([]*schema.Message)
	if len(msgs) == 0 {
		return "", errors.New("sub-agent produced no messages")
	}
	return msgs[len(msgs)-1].Content, nil
}

func taskToolDescriptionFor(compiled map[string]*compiledSubAgent, order []string) (string, error) {
	var b strings.Builder
	for _, name := range order {
		fmt.Fprintf(&b, "%q: %s\n", name, compiled[name].description)
	}
	return pyfmt.Fmt(taskToolDescription, map[string]any{
		"available_agents": strings.TrimSuffix(b.String(), "\n"),
	})
}
