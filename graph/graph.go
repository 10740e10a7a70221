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

package graph

import (
	"context"
	"fmt"
)

const (
	// Start is the virtual entry node of a graph.
	Start = "__start__"
	// End is the virtual terminal node of a graph.
	End = "__end__"
)

const defaultMaxSteps = 10000

// NodeFunc executes one node. It receives a read-only view of the state
// and returns a state update to merge through the schema reducers.
type NodeFunc func(ctx context.Context, s State) (State, error)

// Send schedules one parallel instance of a node with a private input,
// retrievable inside the node via SendInput.
type Send struct {
	Node  string
	Input any
}

// RouteDecision is the result of a branch: either a single next node
// (possibly End) or a parallel fan-out of Sends.
type RouteDecision struct {
	Node  string
	Sends []Send
}

// GoTo routes to a single node.
func GoTo(node string) *RouteDecision {
	return &RouteDecision{Node: node}
}

// FanOut routes to parallel sends.
func FanOut(sends ...Send) *RouteDecision {
	return &RouteDecision{Sends: sends}
}

// RouteFunc decides where execution goes after a node completes.
type RouteFunc func(ctx context.Context, s State) (*RouteDecision, error)

type branch struct {
	route        RouteFunc
	destinations map[string]bool
}

// Graph is a mutable state-graph definition. Compile it into a Runnable
// to execute.
type Graph struct {
	schema   *Schema
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]*branch
	compiled bool
}

// NewGraph creates an empty graph over the given state schema.
func NewGraph(schema *Schema) *Graph {
	return &Graph{
		schema:   schema,
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]string),
		branches: make(map[string]*branch),
	}
}

// AddNode registers a node under a unique key.
func (g *Graph) AddNode(key string, fn NodeFunc) error {
	if key == Start || key == End {
		return fmt.Errorf("node key %q is reserved", key)
	}
	if key == "" {
		return fmt.Errorf("node key cannot be empty")
	}
	if _, ok := g.nodes[key]; ok {
		return fmt.Errorf("node %q already exists", key)
	}
	if fn == nil {
		return fmt.Errorf("node %q has nil func", key)
	}
	g.nodes[key] = fn
	return nil
}

// AddEdge adds a static edge. A node can have a static edge or a branch,
// not both.
func (g *Graph) AddEdge(from, to string) error {
	if from == End {
		return fmt.Errorf("cannot add edge from %s", End)
	}
	if to == Start {
		return fmt.Errorf("cannot add edge to %s", Start)
	}
	if _, ok := g.edges[from]; ok {
		return fmt.Errorf("node %q already has an outgoing edge", from)
	}
	if _, ok := g.branches[from]; ok {
		return fmt.Errorf("node %q already has a branch", from)
	}
	g.edges[from] = to
	return nil
}

// AddBranch adds a conditional edge. destinations is the closed set of
// nodes the route may return; End is always allowed.
func (g *Graph) AddBranch(from string, route RouteFunc, destinations []string) error {
	if from == End {
		return fmt.Errorf("cannot add branch from %s", End)
	}
	if route == nil {
		return fmt.Errorf("branch from %q has nil route", from)
	}
	if _, ok := g.edges[from]; ok {
		return fmt.Errorf("node %q already has an outgoing edge", from)
	}
	if _, ok := g.branches[from]; ok {
		return fmt.Errorf("node %q already has a branch", from)
	}
	dests := make(map[string]bool, len(destinations)+1)
	for _, d := range destinations {
		dests[d] = true
	}
	dests[End] = true
	g.branches[from] = &branch{route: route, destinations: dests}
	return nil
}

type compileOptions struct {
	store    CheckpointStore
	maxSteps int
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

// WithCheckpointStore enables checkpointing, interrupts and state inspection.
func WithCheckpointStore(store CheckpointStore) CompileOption {
	return func(o *compileOptions) {
		o.store = store
	}
}

// WithMaxSteps caps the number of supersteps per run. Defaults to 10000.
func WithMaxSteps(n int) CompileOption {
	return func(o *compileOptions) {
		o.maxSteps = n
	}
}

// Compile validates the graph and returns an executable Runnable.
func (g *Graph) Compile(opts ...CompileOption) (*Runnable, error) {
	o := &compileOptions{maxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(o)
	}

	if _, hasEdge := g.edges[Start]; !hasEdge {
		if _, hasBranch := g.branches[Start]; !hasBranch {
			return nil, fmt.Errorf("graph has no entry edge from %s", Start)
		}
	}
	for from, to := range g.edges {
		if from != Start {
			if _, ok := g.nodes[from]; !ok {
				return nil, fmt.Errorf("edge from unknown node %q", from)
			}
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("edge to unknown node %q", to)
			}
		}
	}
	for from, br := range g.branches {
		if from != Start {
			if _, ok := g.nodes[from]; !ok {
				return nil, fmt.Errorf("branch from unknown node %q", from)
			}
		}
		for dest := range br.destinations {
			if dest == End {
				continue
			}
			if _, ok := g.nodes[dest]; !ok {
				return nil, fmt.Errorf("branch from %q declares unknown destination %q", from, dest)
			}
		}
	}

	return &Runnable{g: g, store: o.store, maxSteps: o.maxSteps}, nil
}
