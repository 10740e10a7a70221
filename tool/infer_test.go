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
	"errors"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
)

type addArgs struct {
	A int `json:"a" jsonschema:"description=first operand"`
	B int `json:"b" jsonschema:"description=second operand"`
}

type addResult struct {
	Sum int `json:"sum"`
}

func TestInferTool(t *testing.T) {
	ctx := context.Background()

	add, err := InferTool("add", "adds two integers", func(ctx context.Context, input addArgs) (*addResult, error) {
		return &addResult{Sum: input.A + input.B}, nil
	})
	assert.NoError(t, err)

	t.Run("info carries the reflected schema", func(t *testing.T) {
		info, err := add.Info(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "add", info.Name)
		assert.Equal(t, "adds two integers", info.Desc)

		raw, err := sonic.Marshal(info.ParamsJSONSchema)
		assert.NoError(t, err)
		var view struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		assert.NoError(t, sonic.Unmarshal(raw, &view))
		assert.Equal(t, "object", view.Type)
		assert.Contains(t, view.Properties, "a")
		assert.Contains(t, view.Properties, "b")
		assert.ElementsMatch(t, []string{"a", "b"}, view.Required)
	})

	t.Run("invoke marshals struct output", func(t *testing.T) {
		out, err := add.InvokableRun(ctx, `{"a":2,"b":3}`)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"sum":5}`, out)
	})

	t.Run("string output passes through unquoted", func(t *testing.T) {
		echo, err := InferTool("echo", "echo", func(ctx context.Context, input addArgs) (string, error) {
			return "plain text", nil
		})
		assert.NoError(t, err)
		out, err := echo.InvokableRun(ctx, `{}`)
		assert.NoError(t, err)
		assert.Equal(t, "plain text", out)
	})

	t.Run("bad arguments error", func(t *testing.T) {
		_, err := add.InvokableRun(ctx, `not json`)
		assert.ErrorContains(t, err, "add")
	})

	t.Run("business errors propagate", func(t *testing.T) {
		failing, err := InferTool("fail", "fails", func(ctx context.Context, input addArgs) (string, error) {
			return "", errors.New("nope")
		})
		assert.NoError(t, err)
		_, err = failing.InvokableRun(ctx, `{}`)
		assert.ErrorContains(t, err, "nope")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := InferTool[addArgs, string]("", "desc", nil)
		assert.Error(t, err)
		_, err = InferTool[addArgs, string]("named", "desc", nil)
		assert.Error(t, err)
	})
}

func TestInferToolAnonymousArgs(t *testing.T) {
	ctx := context.Background()

	greet, err := InferTool("greet", "greets by name", func(ctx context.Context, input struct {
		Name string `json:"name"`
	}) (string, error) {
		return "hi " + input.Name, nil
	})
	assert.NoError(t, err)

	info, err := greet.Info(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, info.ParamsJSONSchema)

	raw, err := sonic.Marshal(info.ParamsJSONSchema)
	assert.NoError(t, err)
	var view struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	}
	assert.NoError(t, sonic.Unmarshal(raw, &view))
	assert.Equal(t, "object", view.Type)
	assert.Contains(t, view.Properties, "name")

	out, err := greet.InvokableRun(ctx, `{"name":"bo"}`)
	assert.NoError(t, err)
	assert.Equal(t, "hi bo", out)

	ping, err := InferTool("ping", "no arguments", func(ctx context.Context, _ struct{}) (string, error) {
		return "pong", nil
	})
	assert.NoError(t, err)
	out, err = ping.InvokableRun(ctx, `{}`)
	assert.NoError(t, err)
	assert.Equal(t, "pong", out)
}
