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
)

// ChainModelCallMiddlewares composes wrap-model-call middlewares into a
// single middleware, onion-style: the first element is outermost, i.e.
// it sees the request first and the response last. Returns nil for an
// empty list so callers can use the base handler directly. Responses are
// normalized at every boundary.
func ChainModelCallMiddlewares(mws []ModelCallMiddleware) ModelCallMiddleware {
	if len(mws) == 0 {
		return nil
	}

	composed := normalizeModelMW(mws[len(mws)-1])
	for i := len(mws) - 2; i >= 0; i-- {
		composed = composeModelMW(normalizeModelMW(mws[i]), composed)
	}
	return composed
}

func normalizeModelMW(mw ModelCallMiddleware) ModelCallMiddleware {
	return func(ctx context.Context, req *ModelRequest, next ModelCallHandler) (*ModelResponse, error) {
		resp, err := mw(ctx, req, func(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
			inner, ierr := next(ctx, req)
			if ierr != nil {
				return nil, ierr
			}
			return normalizeModelResponse(inner), nil
		})
		if err != nil {
			return nil, err
		}
		return normalizeModelResponse(resp), nil
	}
}

func composeModelMW(outer, inner ModelCallMiddleware) ModelCallMiddleware {
	return func(ctx context.Context, req *ModelRequest, next ModelCallHandler) (*ModelResponse, error) {
		return outer(ctx, req, func(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
			return inner(ctx, req, next)
		})
	}
}

// ChainToolCallMiddlewares composes wrap-tool-call middlewares with the
// same onion ordering and normalization as ChainModelCallMiddlewares.
func ChainToolCallMiddlewares(mws []ToolCallMiddleware) ToolCallMiddleware {
	if len(mws) == 0 {
		return nil
	}

	composed := normalizeToolMW(mws[len(mws)-1])
	for i := len(mws) - 2; i >= 0; i-- {
		composed = composeToolMW(normalizeToolMW(mws[i]), composed)
	}
	return composed
}

func normalizeToolMW(mw ToolCallMiddleware) ToolCallMiddleware {
	return func(ctx context.Context, req *ToolCallRequest, next ToolCallHandler) (*ToolCallResponse, error) {
		resp, err := mw(ctx, req, func(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error) {
			inner, ierr := next(ctx, req)
			if ierr != nil {
				return nil, ierr
			}
			return normalizeToolCallResponse(inner), nil
		})
		if err != nil {
			return nil, err
		}
		return normalizeToolCallResponse(resp), nil
	}
}

func composeToolMW(outer, inner ToolCallMiddleware) ToolCallMiddleware {
	return func(ctx context.Context, req *ToolCallRequest, next ToolCallHandler) (*ToolCallResponse, error) {
		return outer(ctx, req, func(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error) {
			return inner(ctx, req, next)
		})
	}
}
