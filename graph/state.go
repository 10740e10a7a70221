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
	"fmt"
	"sort"
)

// State is the shared value flowing through a graph run. Keys are the
// field names declared by the graph's Schema.
type State map[string]any

// Clone returns a shallow copy of the state. Values are shared, so node
// functions must treat them as read-only and return updates instead of
// mutating in place.
func (s State) Clone() State {
	c := make(State, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Keys returns the state's keys in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reducer merges an update into the existing value of a state field.
// A nil Reducer means last-write-wins.
type Reducer func(existing any, update any) any

// FieldSpec declares one field of a graph state schema.
type FieldSpec struct {
	Name string

	// Default produces the initial value of the field at the start of a run.
	Default func() any

	// Reducer merges node updates into the field. Nil replaces.
	Reducer Reducer

	// OmitFromInput hides the field from run input: callers cannot seed it.
	OmitFromInput bool

	// OmitFromOutput hides the field from run output and values events.
	OmitFromOutput bool
}

// Schema is an ordered set of state field declarations.
type Schema struct {
	order  []string
	fields map[string]FieldSpec
}

// NewSchema builds a schema from field specs. Declaring the same field
// name twice is a configuration error.
func NewSchema(specs ...FieldSpec) (*Schema, error) {
	s := &Schema{fields: make(map[string]FieldSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("state field with empty name")
		}
		if _, ok := s.fields[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate state field %q", spec.Name)
		}
		s.fields[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}
	return s, nil
}

// Fields returns the field specs in declaration order.
func (sc *Schema) Fields() []FieldSpec {
	specs := make([]FieldSpec, 0, len(sc.order))
	for _, name := range sc.order {
		specs = append(specs, sc.fields[name])
	}
	return specs
}

// Has reports whether the schema declares the given field.
func (sc *Schema) Has(name string) bool {
	_, ok := sc.fields[name]
	return ok
}

func (sc *Schema) initial() State {
	s := make(State, len(sc.order))
	for _, name := range sc.order {
		spec := sc.fields[name]
		if spec.Default != nil {
			s[name] = spec.Default()
		}
	}
	return s
}

// Apply merges an update into the state through the field reducers,
// returning a new state. Unknown keys are errors.
func (sc *Schema) Apply(s State, update State) (State, error) {
	if len(update) == 0 {
		return s, nil
	}
	next := s.Clone()
	for _, key := range update.Keys() {
		spec, ok := sc.fields[key]
		if !ok {
			return nil, fmt.Errorf("update for unknown state field %q", key)
		}
		var merged any
		if spec.Reducer != nil {
			merged = spec.Reducer(next[key], update[key])
		} else {
			merged = update[key]
		}
		if merged == nil {
			// nil clears the field; checkpoints cannot hold nil interface values
			delete(next, key)
		} else {
			next[key] = merged
		}
	}
	return next, nil
}

// FilterInput drops fields a caller is not allowed to seed.
func (sc *Schema) FilterInput(s State) (State, error) {
	out := make(State, len(s))
	for k, v := range s {
		spec, ok := sc.fields[k]
		if !ok {
			return nil, fmt.Errorf("input for unknown state field %q", k)
		}
		if spec.OmitFromInput {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// FilterOutput drops fields hidden from run output.
func (sc *Schema) FilterOutput(s State) State {
	out := make(State, len(s))
	for k, v := range s {
		if spec, ok := sc.fields[k]; ok && spec.OmitFromOutput {
			continue
		}
		out[k] = v
	}
	return out
}
