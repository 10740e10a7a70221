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
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"

	"github.com/cloudwego/agentkit/schema"
)

// InvokeFunc is the business function of a local tool. T is the argument
// struct (its JSON schema is inferred via reflection and jsonschema
// struct tags), D is the output, marshaled to a string for the model.
type InvokeFunc[T, D any] func(ctx context.Context, input T) (output D, err error)

type localTool[T, D any] struct {
	info *schema.ToolInfo
	fn   InvokeFunc[T, D]
}

func (t *localTool[T, D]) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *localTool[T, D]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...Option) (string, error) {
	var args T
	if err := sonic.UnmarshalString(argumentsInJSON, &args); err != nil {
		return "", fmt.Errorf("unmarshal arguments of tool %q: %w", t.info.Name, err)
	}
	out, err := t.fn(ctx, args)
	if err != nil {
		return "", err
	}
	return marshalString(out)
}

func marshalString(resp any) (string, error) {
	if rs, ok := resp.(string); ok {
		return rs, nil
	}
	return sonic.MarshalString(resp)
}

// ReflectSchema builds the JSON schema of a struct type for tool
// parameters or response formats.
func ReflectSchema(v any) *jsonschema.Schema {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		// anonymous struct types have no definition name to expand from;
		// they are reflected inline at the root instead
		ExpandedStruct: t != nil && t.Name() != "",
	}
	return reflector.Reflect(v)
}

// InferTool creates an InvokableTool from a name, a description and a
// business function, inferring the parameter schema from the function's
// argument struct.
func InferTool[T, D any](toolName, toolDesc string, i InvokeFunc[T, D]) (InvokableTool, error) {
	if toolName == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if i == nil {
		return nil, fmt.Errorf("tool %q has nil func", toolName)
	}

	var args T
	return &localTool[T, D]{
		info: &schema.ToolInfo{
			Name:             toolName,
			Desc:             toolDesc,
			ParamsJSONSchema: ReflectSchema(&args),
		},
		fn: i,
	}, nil
}
