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

// Package humanloop gates configured tool calls behind human approval:
// the run pauses on an interrupt carrying the proposed call, and resumes
// with an approve, edit or reject decision.
package humanloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
)

// MiddlewareName is the registered name of the human-in-the-loop middleware.
const MiddlewareName = "humanloop"

// Decision types accepted when resuming an approval interrupt.
const (
	DecisionApprove = "approve"
	DecisionEdit    = "edit"
	DecisionReject  = "reject"
)

func init() {
	schema.RegisterName[*ApprovalRequest]("_agentkit_approval_request")
}

// ApprovalRequest is the interrupt payload describing the gated call.
type ApprovalRequest struct {
	// ToolCallID identifies the call awaiting a decision.
	ToolCallID string
	// Action is the tool name.
	Action string
	// Args are the proposed tool arguments.
	Args map[string]any
	// AllowedDecisions lists the decision types this call accepts.
	AllowedDecisions []string
	// Description is the configured human-readable explanation.
	Description string
}

// ToolConfig configures the gate of one tool.
type ToolConfig struct {
	// AllowEdit permits resuming with modified arguments.
	AllowEdit bool
	// AllowReject permits rejecting the call outright.
	AllowReject bool
	// Description is shown to the human next to the proposed call.
	Description string
}

// Config configures the human-in-the-loop middleware.
type Config struct {
	// InterruptOn maps tool names to their gate configuration. A nil
	// value gates the tool with every decision type allowed.
	InterruptOn map[string]*ToolConfig
}

// New builds the human-in-the-loop middleware.
func New(config *Config) (*agent.Middleware, error) {
	if config == nil || len(config.InterruptOn) == 0 {
		return nil, errors.New("humanloop middleware requires at least one gated tool")
	}

	return &agent.Middleware{
		Name: MiddlewareName,
		WrapToolCall: func(ctx context.Context, req *agent.ToolCallRequest, next agent.ToolCallHandler) (*agent.ToolCallResponse, error) {
			name := req.Call.Function.Name
			tc, gated := config.InterruptOn[name]
			if !gated {
				return next(ctx, req)
			}
			if tc == nil {
				tc = &ToolConfig{AllowEdit: true, AllowReject: true}
			}

			request := approvalRequestFor(req, tc)
			graph.EmitCustom(ctx, request)

			resumed, err := graph.Interrupt(ctx, request)
			if err != nil {
				return nil, err
			}

			decision, err := parseDecision(resumed)
			if err != nil {
				return nil, fmt.Errorf("resume value for tool %q: %w", name, err)
			}

			switch decision.Type {
			case DecisionApprove:
				return next(ctx, req)

			case DecisionEdit:
				if !tc.AllowEdit {
					return nil, fmt.Errorf("tool %q does not allow edited arguments", name)
				}
				args, merr := sonic.MarshalString(decision.Args)
				if merr != nil {
					return nil, merr
				}
				edited := *req
				edited.Call.Function.Arguments = args
				return next(ctx, &edited)

			case DecisionReject:
				if !tc.AllowReject {
					return nil, fmt.Errorf("tool %q does not allow rejection", name)
				}
				content := "Tool call rejected by user."
				if decision.Message != "" {
					content = fmt.Sprintf("Tool call rejected by user: %s", decision.Message)
				}
				return agent.NewToolCallResponse(
					schema.ToolMessage(content, req.Call.ID, schema.WithToolName(name))), nil

			default:
				return nil, fmt.Errorf("unknown decision type %q", decision.Type)
			}
		},
	}, nil
}

func approvalRequestFor(req *agent.ToolCallRequest, tc *ToolConfig) *ApprovalRequest {
	var args map[string]any
	_ = sonic.UnmarshalString(req.Call.Function.Arguments, &args)

	allowed := []string{DecisionApprove}
	if tc.AllowEdit {
		allowed = append(allowed, DecisionEdit)
	}
	if tc.AllowReject {
		allowed = append(allowed, DecisionReject)
	}
	return &ApprovalRequest{
		ToolCallID:       req.Call.ID,
		Action:           req.Call.Function.Name,
		Args:             args,
		AllowedDecisions: allowed,
		Description:      tc.Description,
	}
}

// Decision is a resolved human response to an approval request.
type Decision struct {
	Type string `json:"type"`
	// Args replaces the tool arguments for edit decisions.
	Args map[string]any `json:"args,omitempty"`
	// Message explains a rejection to the model.
	Message string `json:"message,omitempty"`
}

// parseDecision accepts a typed Decision or the map shape arriving from
// a wire resume request.
func parseDecision(v any) (*Decision, error) {
	switch d := v.(type) {
	case *Decision:
		return d, nil
	case Decision:
		return &d, nil
	case string:
		return &Decision{Type: d}, nil
	case map[string]any:
		raw, err := sonic.Marshal(d)
		if err != nil {
			return nil, err
		}
		var out Decision
		if err = sonic.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		if out.Type == "" {
			return nil, errors.New("decision has no type")
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("unsupported decision value of type %T", v)
	}
}
