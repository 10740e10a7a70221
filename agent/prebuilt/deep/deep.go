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

// Package deep assembles the deep-agent preset: an agent wired with
// planning, a shared virtual filesystem, sub-agent delegation and
// optional conversation summarization and human approval gates.
package deep

import (
	"context"
	"errors"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/agent/middlewares/filesystem"
	"github.com/cloudwego/agentkit/agent/middlewares/humanloop"
	"github.com/cloudwego/agentkit/agent/middlewares/planning"
	"github.com/cloudwego/agentkit/agent/middlewares/subagents"
	"github.com/cloudwego/agentkit/agent/middlewares/summarization"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/tool"
)

// Config configures a deep agent.
type Config struct {
	// Model drives the agent and, by default, its sub-agents. Required.
	Model model.ChatModel

	// Tools are offered to the agent and to sub-agents without their own.
	Tools []tool.BaseTool

	// SystemPrompt is appended to the built-in deep-agent instruction.
	SystemPrompt string

	// SubAgents are reachable through the task tool, next to the
	// built-in general-purpose agent.
	SubAgents []*subagents.SubAgent

	// Backend is the storage of the filesystem tools, shared between the
	// agent and its sub-agents. Optional, in-memory by default.
	Backend filesystem.Backend

	// InterruptOn gates tools behind human approval.
	InterruptOn map[string]*humanloop.ToolConfig

	// WithoutSummarization disables conversation summarization.
	WithoutSummarization bool

	// SummarizationMaxTokens overrides the summarization trigger.
	SummarizationMaxTokens int

	// Middlewares are appended after the built-in ones.
	Middlewares []*agent.Middleware

	// ResponseFormat requests structured output, as in agent.Config.
	ResponseFormat any

	// CheckpointStore enables threads, interrupts and history.
	CheckpointStore graph.CheckpointStore

	MaxIterations int
}

// New builds a deep agent.
func New(ctx context.Context, config *Config) (*agent.Agent, error) {
	if config == nil || config.Model == nil {
		return nil, errors.New("deep agent requires a model")
	}

	backend := config.Backend
	if backend == nil {
		backend = filesystem.NewInMemoryBackend()
	}

	builtin, err := buildMiddlewares(ctx, config, backend)
	if err != nil {
		return nil, err
	}

	systemPrompt := baseInstruction
	if config.SystemPrompt != "" {
		systemPrompt += "\n\n" + config.SystemPrompt
	}

	return agent.New(ctx, &agent.Config{
		Model:           config.Model,
		ToolsConfig:     agent.ToolsConfig{Tools: config.Tools},
		SystemPrompt:    systemPrompt,
		Middlewares:     append(builtin, config.Middlewares...),
		ResponseFormat:  config.ResponseFormat,
		CheckpointStore: config.CheckpointStore,
		MaxIterations:   config.MaxIterations,
	})
}

func buildMiddlewares(ctx context.Context, config *Config, backend filesystem.Backend) ([]*agent.Middleware, error) {
	plan, err := planning.New()
	if err != nil {
		return nil, err
	}
	fs, err := filesystem.New(&filesystem.Config{Backend: backend})
	if err != nil {
		return nil, err
	}

	subDefaults, err := subAgentDefaults(config, backend)
	if err != nil {
		return nil, err
	}
	tasks, err := subagents.New(ctx, &subagents.Config{
		DefaultModel:       config.Model,
		DefaultTools:       config.Tools,
		DefaultMiddlewares: subDefaults,
		SubAgents:          config.SubAgents,
		MaxIterations:      config.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	ms := []*agent.Middleware{plan, fs, tasks}

	if !config.WithoutSummarization {
		sum, serr := summarization.New(&summarization.Config{
			Model:     config.Model,
			MaxTokens: config.SummarizationMaxTokens,
		})
		if serr != nil {
			return nil, serr
		}
		ms = append(ms, sum)
	}

	if len(config.InterruptOn) > 0 {
		hitl, herr := humanloop.New(&humanloop.Config{InterruptOn: config.InterruptOn})
		if herr != nil {
			return nil, herr
		}
		ms = append(ms, hitl)
	}

	return ms, nil
}

// subAgentDefaults mirrors the orchestrator's stack inside every
// sub-agent, sharing the same filesystem backend.
func subAgentDefaults(config *Config, backend filesystem.Backend) ([]*agent.Middleware, error) {
	plan, err := planning.New()
	if err != nil {
		return nil, err
	}
	fs, err := filesystem.New(&filesystem.Config{Backend: backend})
	if err != nil {
		return nil, err
	}
	ms := []*agent.Middleware{plan, fs}

	if !config.WithoutSummarization {
		sum, serr := summarization.New(&summarization.Config{
			Model:     config.Model,
			MaxTokens: config.SummarizationMaxTokens,
		})
		if serr != nil {
			return nil, serr
		}
		ms = append(ms, sum)
	}
	return ms, nil
}
