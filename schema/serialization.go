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
	"encoding/gob"
)

func init() {
	RegisterName[*Message]("_agentkit_message")
	RegisterName[[]*Message]("_agentkit_messages")
	RegisterName[RoleType]("_agentkit_role_type")
	RegisterName[ToolCall]("_agentkit_tool_call")
	RegisterName[FunctionCall]("_agentkit_function_call")
	RegisterName[ResponseMeta]("_agentkit_response_meta")
	RegisterName[TokenUsage]("_agentkit_token_usage")
	RegisterName[map[string]any]("_agentkit_map")
	RegisterName[[]any]("_agentkit_slice")
}

// RegisterName registers type T under a stable name with the gob
// serialization system used by checkpoint stores. Register state field
// types that flow through checkpoints, otherwise saving will fail for
// values held in interface fields.
// It panics if the registration conflicts with a previous one.
func RegisterName[T any](name string) {
	var v T
	gob.RegisterName(name, v)
}
