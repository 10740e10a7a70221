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

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
)

// routeTargets are the four anchors of the agent loop:
//
//	entry      -> first node after start
//	loop entry -> where the model loop restarts (first before_model, else model)
//	loop exit  -> where loop routing happens (first after_model, else model);
//	              the model connects to the LAST after_model and the chain
//	              runs in reverse declaration order
//	exit       -> where the loop leaves to (first after_agent, else End)
type routeTargets struct {
	entry     string
	loopEntry string
	loopExit  string
	exitNode  string
	hasTools  bool
}

func determineRouteTargets(mws []*Middleware, hasTools bool) routeTargets {
	rt := routeTargets{
		loopEntry: nodeModel,
		loopExit:  nodeModel,
		exitNode:  graph.End,
		hasTools:  hasTools,
	}
	for _, mw := range mws {
		if mw.BeforeModel != nil {
			rt.loopEntry = beforeModelKey(mw)
			break
		}
	}
	for _, mw := range mws {
		if mw.AfterModel != nil {
			rt.loopExit = afterModelKey(mw)
			break
		}
	}
	for _, mw := range mws {
		if mw.AfterAgent != nil {
			rt.exitNode = afterAgentKey(mw)
			break
		}
	}
	rt.entry = rt.loopEntry
	for _, mw := range mws {
		if mw.BeforeAgent != nil {
			rt.entry = beforeAgentKey(mw)
			break
		}
	}
	return rt
}

func (rt routeTargets) resolveJump(target string) (string, error) {
	switch target {
	case JumpToModel:
		return rt.loopEntry, nil
	case JumpToEnd:
		return rt.exitNode, nil
	case JumpToTools:
		if !rt.hasTools {
			return "", fmt.Errorf("jump to %q but the agent has no tools", JumpToTools)
		}
		return nodeTools, nil
	default:
		return "", fmt.Errorf("unknown jump target %q", target)
	}
}

func (rt routeTargets) jumpDestinations(canJumpTo []string) []string {
	dests := make([]string, 0, len(canJumpTo))
	for _, target := range canJumpTo {
		resolved, err := rt.resolveJump(target)
		if err != nil {
			continue
		}
		dests = append(dests, resolved)
	}
	return dests
}

// answeredCalls collects the tool call IDs already answered by tool
// messages after the given index.
func answeredCalls(msgs []*schema.Message, from int) map[string]bool {
	answered := make(map[string]bool)
	for i := from + 1; i < len(msgs); i++ {
		if msgs[i].Role == schema.Tool && msgs[i].ToolCallID != "" {
			answered[msgs[i].ToolCallID] = true
		}
	}
	return answered
}

// modelToTools routes the loop exit of a tool-bearing agent: jump first,
// then fan out pending tool calls, then leave on structured output or a
// plain answer, otherwise loop.
func (b *builder) modelToTools(rt routeTargets) graph.RouteFunc {
	return func(ctx context.Context, s graph.State) (*graph.RouteDecision, error) {
		if j := jumpOf(s); j != "" {
			resolved, err := rt.resolveJump(j)
			if err != nil {
				return nil, err
			}
			return graph.GoTo(resolved), nil
		}

		msgs := messagesOf(s)
		lastAI, idx := lastAIMessage(msgs)
		if lastAI == nil || len(lastAI.ToolCalls) == 0 {
			return graph.GoTo(rt.exitNode), nil
		}

		answered := answeredCalls(msgs, idx)
		var sends []graph.Send
		for _, tc := range lastAI.ToolCalls {
			if answered[tc.ID] {
				continue
			}
			if _, isStructured := b.bindings[tc.Function.Name]; isStructured {
				continue
			}
			sends = append(sends, graph.Send{Node: nodeTools, Input: &ToolCallRequest{Call: tc}})
		}
		if len(sends) > 0 {
			return graph.FanOut(sends...), nil
		}

		if _, ok := s[StateKeyStructuredResponse]; ok {
			return graph.GoTo(rt.exitNode), nil
		}
		return graph.GoTo(rt.loopEntry), nil
	}
}

func (b *builder) modelToToolsDestinations(rt routeTargets, loopExitHook *NodeHook) []string {
	dests := []string{nodeTools, rt.exitNode}
	if b.responseFormat != nil || rt.loopExit != nodeModel {
		dests = append(dests, rt.loopEntry)
	}
	if loopExitHook != nil {
		dests = append(dests, rt.jumpDestinations(loopExitHook.CanJumpTo)...)
	}
	return dests
}

// toolsToModel routes after tool execution: jump first, then leave when
// every executed client-side call returns directly or a structured
// response was produced, otherwise loop.
func (b *builder) toolsToModel(rt routeTargets) graph.RouteFunc {
	return func(ctx context.Context, s graph.State) (*graph.RouteDecision, error) {
		if j := jumpOf(s); j != "" {
			resolved, err := rt.resolveJump(j)
			if err != nil {
				return nil, err
			}
			return graph.GoTo(resolved), nil
		}

		msgs := messagesOf(s)
		lastAI, _ := lastAIMessage(msgs)
		if lastAI != nil {
			allDirect := false
			for _, tc := range lastAI.ToolCalls {
				entry, ok := b.registry[tc.Function.Name]
				if !ok {
					continue // structured or provider-side call
				}
				if !entry.returnDirect {
					allDirect = false
					break
				}
				allDirect = true
			}
			if allDirect {
				return graph.GoTo(rt.exitNode), nil
			}
		}

		if _, ok := s[StateKeyStructuredResponse]; ok {
			return graph.GoTo(rt.exitNode), nil
		}
		return graph.GoTo(rt.loopEntry), nil
	}
}

func (b *builder) toolsToModelDestinations(rt routeTargets) []string {
	dests := []string{rt.loopEntry, rt.exitNode}
	if rt.hasTools {
		dests = append(dests, nodeTools)
	}
	return dests
}

// modelToModel routes the loop exit of a tool-less agent with a response
// format: leave once structured output landed or the model answered
// without tool calls, otherwise loop for a retry.
func (b *builder) modelToModel(rt routeTargets) graph.RouteFunc {
	return func(ctx context.Context, s graph.State) (*graph.RouteDecision, error) {
		if j := jumpOf(s); j != "" {
			resolved, err := rt.resolveJump(j)
			if err != nil {
				return nil, err
			}
			return graph.GoTo(resolved), nil
		}

		if _, ok := s[StateKeyStructuredResponse]; ok {
			return graph.GoTo(rt.exitNode), nil
		}
		msgs := messagesOf(s)
		lastAI, _ := lastAIMessage(msgs)
		if lastAI != nil && len(lastAI.ToolCalls) > 0 {
			return graph.GoTo(rt.loopEntry), nil
		}
		return graph.GoTo(rt.exitNode), nil
	}
}

// jumpRoute is the branch of a hook that declared CanJumpTo: honor the
// jump when set, otherwise continue to the hook's static successor.
func (rt routeTargets) jumpRoute(defaultNext string) graph.RouteFunc {
	return func(ctx context.Context, s graph.State) (*graph.RouteDecision, error) {
		if j := jumpOf(s); j != "" {
			resolved, err := rt.resolveJump(j)
			if err != nil {
				return nil, err
			}
			return graph.GoTo(resolved), nil
		}
		return graph.GoTo(defaultNext), nil
	}
}

// connectHook wires a hook node to its successor, via a jump branch when
// the hook declares jump targets.
func connectHook(g *graph.Graph, rt routeTargets, from string, hook *NodeHook, next string) error {
	if hook == nil || len(hook.CanJumpTo) == 0 {
		return g.AddEdge(from, next)
	}
	dests := append([]string{next}, rt.jumpDestinations(hook.CanJumpTo)...)
	return g.AddBranch(from, rt.jumpRoute(next), dests)
}

// buildGraph wires hook nodes, the model node and the tool node into the
// agent loop.
func (b *builder) buildGraph(stateSchema *graph.Schema) (*graph.Graph, error) {
	mws := b.conf.Middlewares
	rt := determineRouteTargets(mws, len(b.registry) > 0)

	g := graph.NewGraph(stateSchema)

	var beforeAgent, beforeModel, afterAgent []string
	var afterModel []string
	var beforeModelHooks, afterModelHooks []*NodeHook

	for _, mw := range mws {
		if mw.BeforeAgent != nil {
			key := beforeAgentKey(mw)
			if err := g.AddNode(key, hookNode(key, mw.BeforeAgent)); err != nil {
				return nil, err
			}
			beforeAgent = append(beforeAgent, key)
		}
		if mw.BeforeModel != nil {
			key := beforeModelKey(mw)
			if err := g.AddNode(key, hookNode(key, mw.BeforeModel.Fn)); err != nil {
				return nil, err
			}
			beforeModel = append(beforeModel, key)
			beforeModelHooks = append(beforeModelHooks, mw.BeforeModel)
		}
		if mw.AfterModel != nil {
			key := afterModelKey(mw)
			if err := g.AddNode(key, hookNode(key, mw.AfterModel.Fn)); err != nil {
				return nil, err
			}
			afterModel = append(afterModel, key)
			afterModelHooks = append(afterModelHooks, mw.AfterModel)
		}
		if mw.AfterAgent != nil {
			key := afterAgentKey(mw)
			if err := g.AddNode(key, hookNode(key, mw.AfterAgent)); err != nil {
				return nil, err
			}
			afterAgent = append(afterAgent, key)
		}
	}

	if err := g.AddNode(nodeModel, b.modelNode()); err != nil {
		return nil, err
	}
	if rt.hasTools {
		if err := g.AddNode(nodeTools, b.toolNode()); err != nil {
			return nil, err
		}
	}

	if err := g.AddEdge(graph.Start, rt.entry); err != nil {
		return nil, err
	}

	// before_agent chain, ending at the loop entry
	for i, key := range beforeAgent {
		next := rt.loopEntry
		if i+1 < len(beforeAgent) {
			next = beforeAgent[i+1]
		}
		if err := g.AddEdge(key, next); err != nil {
			return nil, err
		}
	}

	// before_model chain, ending at the model
	for i, key := range beforeModel {
		next := nodeModel
		if i+1 < len(beforeModel) {
			next = beforeModel[i+1]
		}
		if err := connectHook(g, rt, key, beforeModelHooks[i], next); err != nil {
			return nil, err
		}
	}

	// after_model chain runs in reverse: the model feeds the last
	// after_model, which chains backwards to the first (the loop exit).
	var loopExitHook *NodeHook
	if len(afterModel) > 0 {
		if err := g.AddEdge(nodeModel, afterModel[len(afterModel)-1]); err != nil {
			return nil, err
		}
		for i := len(afterModel) - 1; i > 0; i-- {
			if err := connectHook(g, rt, afterModel[i], afterModelHooks[i], afterModel[i-1]); err != nil {
				return nil, err
			}
		}
		loopExitHook = afterModelHooks[0]
	}

	// the loop exit's main branch
	switch {
	case rt.hasTools:
		if err := g.AddBranch(rt.loopExit, b.modelToTools(rt), b.modelToToolsDestinations(rt, loopExitHook)); err != nil {
			return nil, err
		}
		if err := g.AddBranch(nodeTools, b.toolsToModel(rt), b.toolsToModelDestinations(rt)); err != nil {
			return nil, err
		}
	case b.responseFormat != nil || loopExitHook != nil:
		dests := []string{rt.loopEntry, rt.exitNode}
		if loopExitHook != nil {
			dests = append(dests, rt.jumpDestinations(loopExitHook.CanJumpTo)...)
		}
		if err := g.AddBranch(rt.loopExit, b.modelToModel(rt), dests); err != nil {
			return nil, err
		}
	default:
		if err := g.AddEdge(rt.loopExit, rt.exitNode); err != nil {
			return nil, err
		}
	}

	// after_agent chain, ending at End
	for i, key := range afterAgent {
		next := graph.End
		if i+1 < len(afterAgent) {
			next = afterAgent[i+1]
		}
		if err := g.AddEdge(key, next); err != nil {
			return nil, err
		}
	}

	return g, nil
}
