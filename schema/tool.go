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
	"github.com/eino-contrib/jsonschema"
)

// ToolChoice controls whether and how the model may call tools.
type ToolChoice string

const (
	// ToolChoiceNone forbids the model from calling any tool.
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceAny forces the model to call at least one tool.
	ToolChoiceAny ToolChoice = "any"
)

// ToolInfo describes a tool for chat model intent recognition.
type ToolInfo struct {
	Name string
	Desc string

	// ParamsJSONSchema is the JSON schema of the tool's input parameters.
	ParamsJSONSchema *jsonschema.Schema

	Extra map[string]any
}
