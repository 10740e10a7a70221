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
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
)

// bindModelOptions validates the request against the agent's tool
// registry, resolves the effective structured output strategy and
// assembles the model call options.
func bindModelOptions(ctx context.Context, req *ModelRequest, registry map[string]toolEntry,
	bindings map[string]*OutputToolBinding) ([]model.Option, ResponseFormat, error) {

	var unknown []string
	infos := make([]*schema.ToolInfo, 0, len(req.Tools))
	for _, t := range req.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("tool info: %w", err)
		}
		if _, ok := registry[info.Name]; !ok {
			unknown = append(unknown, info.Name)
			continue
		}
		infos = append(infos, info)
	}
	if len(unknown) > 0 {
		available := make([]string, 0, len(registry))
		for name := range registry {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, nil, fmt.Errorf(
			"middleware returned unknown tool names: [%s]\n\n"+
				"Available client-side tools: [%s]\n\n"+
				"To fix this issue:\n"+
				"1. Ensure the tools are passed to the agent via the ToolsConfig\n"+
				"2. If a middleware contributes tools, register them via its Tools field\n"+
				"3. Verify that tool names in ModelRequest.Tools match the actual tool names\n"+
				"Note: provider built-in tools can be added dynamically via ProviderTools.",
			strings.Join(unknown, ", "), strings.Join(available, ", "))
	}

	effective := req.ResponseFormat
	if auto, ok := effective.(*AutoStrategy); ok {
		if supportsProviderStrategy(req.Model, req.Tools) {
			effective = &ProviderStrategy{Schema: auto.Schema}
		} else {
			effective = &ToolStrategy{Schemas: []*SchemaSpec{auto.Schema}}
		}
	}

	var opts []model.Option

	switch f := effective.(type) {
	case *ProviderStrategy:
		if len(infos) > 0 {
			opts = append(opts, model.WithTools(infos))
		}
		if req.ToolChoice != nil {
			opts = append(opts, model.WithToolChoice(*req.ToolChoice))
		}
		opts = append(opts, model.WithResponseFormat(&model.ResponseFormat{
			Name:   f.Schema.Name,
			Schema: f.Schema.Schema,
			Strict: true,
		}))

	case *ToolStrategy:
		// Structured tools must be declared upfront when creating the
		// agent; middleware may narrow the set but not extend it.
		for _, spec := range f.Schemas {
			binding, ok := bindings[spec.Name]
			if !ok {
				return nil, nil, fmt.Errorf(
					"tool strategy specifies tool %q which wasn't declared in the original response format when creating the agent",
					spec.Name)
			}
			infos = append(infos, binding.Info)
		}
		opts = append(opts, model.WithTools(infos))
		if len(f.Schemas) > 0 {
			opts = append(opts, model.WithToolChoice(schema.ToolChoiceAny))
		} else if req.ToolChoice != nil {
			opts = append(opts, model.WithToolChoice(*req.ToolChoice))
		}

	case nil:
		effective = nil
		if len(infos) > 0 {
			opts = append(opts, model.WithTools(infos))
		}
		if req.ToolChoice != nil {
			opts = append(opts, model.WithToolChoice(*req.ToolChoice))
		}

	default:
		return nil, nil, fmt.Errorf("unsupported response format %T", effective)
	}

	if len(req.ModelSettings) > 0 {
		opts = append(opts, model.WithExtra(req.ModelSettings))
	}
	return opts, effective, nil
}

// handleModelOutput builds the normalized response of a model call,
// parsing structured output according to the effective strategy.
func handleModelOutput(output *schema.Message, effective ResponseFormat,
	bindings map[string]*OutputToolBinding) (*ModelResponse, error) {

	if ps, ok := effective.(*ProviderStrategy); ok {
		if len(output.ToolCalls) > 0 {
			return NewModelResponse(output), nil
		}
		binding := newOutputToolBinding(ps.Schema)
		parsed, err := binding.Parse(output.Content)
		if err != nil {
			return nil, &StructuredOutputValidationError{SchemaName: ps.Schema.Name, Cause: err, Output: output}
		}
		return &ModelResponse{Result: []*schema.Message{output}, StructuredResponse: parsed}, nil
	}

	ts, ok := effective.(*ToolStrategy)
	if !ok || len(output.ToolCalls) == 0 {
		return NewModelResponse(output), nil
	}

	var structuredCalls []schema.ToolCall
	for _, tc := range output.ToolCalls {
		if _, isStructured := bindings[tc.Function.Name]; isStructured {
			structuredCalls = append(structuredCalls, tc)
		}
	}
	if len(structuredCalls) == 0 {
		return NewModelResponse(output), nil
	}

	if len(structuredCalls) > 1 {
		names := make([]string, 0, len(structuredCalls))
		for _, tc := range structuredCalls {
			names = append(names, tc.Function.Name)
		}
		ambiguity := &MultipleStructuredOutputsError{ToolNames: names, Output: output}
		retry, errMsg := ts.errorPolicy()(ambiguity)
		if !retry {
			return nil, ambiguity
		}
		msgs := []*schema.Message{output}
		for _, tc := range structuredCalls {
			msgs = append(msgs, schema.ToolMessage(errMsg, tc.ID, schema.WithToolName(tc.Function.Name)))
		}
		return &ModelResponse{Result: msgs}, nil
	}

	call := structuredCalls[0]
	parsed, err := bindings[call.Function.Name].Parse(call.Function.Arguments)
	if err != nil {
		validation := &StructuredOutputValidationError{SchemaName: call.Function.Name, Cause: err, Output: output}
		retry, errMsg := ts.errorPolicy()(validation)
		if !retry {
			return nil, validation
		}
		return &ModelResponse{Result: []*schema.Message{
			output,
			schema.ToolMessage(errMsg, call.ID, schema.WithToolName(call.Function.Name)),
		}}, nil
	}

	content := ts.ToolMessageContent
	if content == "" {
		rendered, merr := sonic.MarshalString(parsed)
		if merr != nil {
			rendered = fmt.Sprintf("%v", parsed)
		}
		content = fmt.Sprintf("Returning structured response: %s", rendered)
	}
	return &ModelResponse{
		Result: []*schema.Message{
			output,
			schema.ToolMessage(content, call.ID, schema.WithToolName(call.Function.Name)),
		},
		StructuredResponse: parsed,
	}, nil
}
