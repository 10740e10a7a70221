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
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"

	"github.com/cloudwego/agentkit/model"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// SchemaSpec declares one structured output schema.
type SchemaSpec struct {
	// Name identifies the schema; under the tool strategy it is also the
	// synthetic tool name.
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Strict      bool
}

// ErrorPolicy decides how a structured output failure is handled: retry
// with a correction message fed back to the model, or give up and
// surface the error. The default retries with the error text.
type ErrorPolicy func(err error) (retry bool, message string)

// RetryAlways feeds the error text back to the model and retries.
func RetryAlways() ErrorPolicy {
	return func(err error) (bool, string) {
		return true, fmt.Sprintf("Error: %s\n Please fix your mistakes.", err.Error())
	}
}

// RetryNever surfaces the error immediately.
func RetryNever() ErrorPolicy {
	return func(err error) (bool, string) {
		return false, ""
	}
}

// RetryWithMessage retries with a fixed correction message.
func RetryWithMessage(msg string) ErrorPolicy {
	return func(err error) (bool, string) {
		return true, msg
	}
}

// RetryOn retries only for errors matching the predicate.
func RetryOn(pred func(error) bool) ErrorPolicy {
	return func(err error) (bool, string) {
		if pred(err) {
			return true, fmt.Sprintf("Error: %s\n Please fix your mistakes.", err.Error())
		}
		return false, ""
	}
}

// ResponseFormat selects a structured output strategy.
type ResponseFormat interface {
	responseFormat()
}

// AutoStrategy carries a raw schema and defers the strategy choice to a
// capability probe of the bound model at call time.
type AutoStrategy struct {
	Schema *SchemaSpec
}

func (*AutoStrategy) responseFormat() {}

// ProviderStrategy requests provider-native JSON schema output.
type ProviderStrategy struct {
	Schema *SchemaSpec
}

func (*ProviderStrategy) responseFormat() {}

// ToolStrategy obtains structured output through synthetic tools the
// model is forced to call.
type ToolStrategy struct {
	Schemas []*SchemaSpec

	// ToolMessageContent overrides the synthetic tool result message.
	ToolMessageContent string

	// HandleErrors decides retry behavior on parse and ambiguity
	// failures. Nil means RetryAlways.
	HandleErrors ErrorPolicy
}

func (*ToolStrategy) responseFormat() {}

func (t *ToolStrategy) errorPolicy() ErrorPolicy {
	if t.HandleErrors != nil {
		return t.HandleErrors
	}
	return RetryAlways()
}

// StructuredOutputValidationError reports that a model's structured
// output failed to parse against its schema.
type StructuredOutputValidationError struct {
	SchemaName string
	Cause      error
	Output     *schema.Message
}

func (e *StructuredOutputValidationError) Error() string {
	return fmt.Sprintf("structured output for %q failed validation: %v", e.SchemaName, e.Cause)
}

func (e *StructuredOutputValidationError) Unwrap() error { return e.Cause }

// MultipleStructuredOutputsError reports that the model called more than
// one structured output tool in a single response.
type MultipleStructuredOutputsError struct {
	ToolNames []string
	Output    *schema.Message
}

func (e *MultipleStructuredOutputsError) Error() string {
	return fmt.Sprintf("model returned multiple structured outputs: %s", strings.Join(e.ToolNames, ", "))
}

// OutputToolBinding ties a structured output schema to its synthetic tool.
type OutputToolBinding struct {
	Spec *SchemaSpec
	Info *schema.ToolInfo
}

// Parse validates JSON arguments against the schema's required fields
// and decodes them.
func (b *OutputToolBinding) Parse(argsJSON string) (any, error) {
	var parsed map[string]any
	if err := sonic.UnmarshalString(argsJSON, &parsed); err != nil {
		return nil, fmt.Errorf("decode structured output %q: %w", b.Spec.Name, err)
	}
	for _, field := range requiredFields(b.Spec.Schema) {
		if _, ok := parsed[field]; !ok {
			return nil, fmt.Errorf("structured output %q missing required field %q", b.Spec.Name, field)
		}
	}
	return parsed, nil
}

// requiredFields extracts the top-level required list of a JSON schema
// through its serialized form, so it works for reflected and hand-built
// schemas alike.
func requiredFields(js *jsonschema.Schema) []string {
	if js == nil {
		return nil
	}
	raw, err := sonic.Marshal(js)
	if err != nil {
		return nil
	}
	var view struct {
		Required []string `json:"required"`
	}
	if err := sonic.Unmarshal(raw, &view); err != nil {
		return nil
	}
	return view.Required
}

// newOutputToolBinding builds the synthetic tool for a schema spec.
func newOutputToolBinding(spec *SchemaSpec) *OutputToolBinding {
	desc := spec.Description
	if desc == "" {
		desc = fmt.Sprintf("Return a structured response conforming to the %s schema.", spec.Name)
	}
	return &OutputToolBinding{
		Spec: spec,
		Info: &schema.ToolInfo{
			Name:             spec.Name,
			Desc:             desc,
			ParamsJSONSchema: spec.Schema,
		},
	}
}

// createStructuredOutputTools prepares the synthetic tool bindings for
// every schema a ToolStrategy (or Auto fallback) may need.
func createStructuredOutputTools(rf ResponseFormat) map[string]*OutputToolBinding {
	bindings := make(map[string]*OutputToolBinding)
	switch f := rf.(type) {
	case *ToolStrategy:
		for _, spec := range f.Schemas {
			bindings[spec.Name] = newOutputToolBinding(spec)
		}
	case *AutoStrategy:
		// Auto may degrade to the tool strategy at call time.
		bindings[f.Schema.Name] = newOutputToolBinding(f.Schema)
	}
	return bindings
}

// convertResponseFormat wraps a raw schema spec into an AutoStrategy.
// Explicit strategies pass through unchanged.
func convertResponseFormat(rf any) (ResponseFormat, error) {
	switch f := rf.(type) {
	case nil:
		return nil, nil
	case ResponseFormat:
		return f, nil
	case *SchemaSpec:
		return &AutoStrategy{Schema: f}, nil
	case *jsonschema.Schema:
		return &AutoStrategy{Schema: &SchemaSpec{Name: "response_format", Schema: f}}, nil
	default:
		return nil, fmt.Errorf("unsupported response format type %T", rf)
	}
}

// providerStructuredOutputModels are model name fragments known to
// support provider-native structured output, used when the model does
// not expose a capability profile.
var providerStructuredOutputModels = []string{
	"gpt-5", "gpt-4.1", "gpt-4o", "gpt-oss", "o3-pro", "o3-mini", "grok-4",
}

// supportsProviderStrategy probes whether the bound model can serve
// provider-native structured output for this call. Gemini models cannot
// combine native structured output with tool calling, so tool-bearing
// requests fall back to the tool strategy there.
func supportsProviderStrategy(m model.ChatModel, tools []tool.BaseTool) bool {
	if pm, ok := m.(model.ProfiledChatModel); ok {
		p := pm.Profile()
		if p == nil || !p.StructuredOutput {
			return false
		}
		if strings.Contains(strings.ToLower(p.Provider), "gemini") && len(tools) > 0 {
			return false
		}
		return true
	}

	type named interface{ Name() string }
	if nm, ok := m.(named); ok {
		name := strings.ToLower(nm.Name())
		for _, fragment := range providerStructuredOutputModels {
			if strings.Contains(name, fragment) {
				return true
			}
		}
	}
	return false
}
