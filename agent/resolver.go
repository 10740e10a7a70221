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

	"github.com/cloudwego/agentkit/graph"
	"github.com/cloudwego/agentkit/schema"
)

// Reserved agent state fields.
const (
	// StateKeyMessages holds the conversation, merged with AddMessages.
	StateKeyMessages = "messages"
	// StateKeyJumpTo is the ephemeral jump request written by hooks and
	// tool calls; it never appears in run input or output.
	StateKeyJumpTo = "jump_to"
	// StateKeyStructuredResponse holds the parsed structured output.
	StateKeyStructuredResponse = "structured_response"
)

// RemoveMessage is an AddMessages sentinel deleting a message by ID.
type RemoveMessage struct {
	ID string
}

func init() {
	schema.RegisterName[RemoveMessage]("_agentkit_remove_message")
}

// AddMessages is the reducer of the messages field. Updates may be a
// single message, a message slice, or a mixed []any of messages and
// RemoveMessage sentinels. Messages with a known ID replace the existing
// entry in place; others append.
func AddMessages(existing any, update any) any {
	msgs, _ := existing.([]*schema.Message)

	var items []any
	switch u := update.(type) {
	case nil:
		return msgs
	case *schema.Message:
		items = []any{u}
	case []*schema.Message:
		for _, m := range u {
			items = append(items, m)
		}
	case []any:
		items = u
	case RemoveMessage:
		items = []any{u}
	default:
		// unknown update shape, keep state unchanged
		return msgs
	}

	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		if m.ID != "" {
			index[m.ID] = i
		}
	}

	for _, item := range items {
		switch v := item.(type) {
		case RemoveMessage:
			if pos, ok := index[v.ID]; ok {
				msgs = append(msgs[:pos], msgs[pos+1:]...)
				index = make(map[string]int, len(msgs))
				for i, m := range msgs {
					if m.ID != "" {
						index[m.ID] = i
					}
				}
			}
		case *schema.Message:
			if v == nil {
				continue
			}
			if v.ID != "" {
				if pos, ok := index[v.ID]; ok {
					msgs[pos] = v
					continue
				}
				index[v.ID] = len(msgs)
			}
			msgs = append(msgs, v)
		}
	}
	return msgs
}

// baseStateFields returns the reserved fields every agent state carries.
func baseStateFields() []graph.FieldSpec {
	return []graph.FieldSpec{
		{
			Name:    StateKeyMessages,
			Default: func() any { return []*schema.Message{} },
			Reducer: AddMessages,
		},
		{
			Name:           StateKeyJumpTo,
			OmitFromInput:  true,
			OmitFromOutput: true,
		},
		{
			Name:          StateKeyStructuredResponse,
			OmitFromInput: true,
		},
	}
}

// ResolveStateSchemas merges the base agent fields with every
// middleware's state schema into the full, input and output schemas.
// A field declared by two sources is a configuration error; merging
// silently would let one middleware clobber another's data.
func ResolveStateSchemas(mws []*Middleware) (full *graph.Schema, err error) {
	specs := baseStateFields()
	owner := make(map[string]string, len(specs))
	for _, spec := range specs {
		owner[spec.Name] = "agent"
	}

	for _, mw := range mws {
		for _, spec := range mw.StateSchema {
			if prev, ok := owner[spec.Name]; ok {
				return nil, fmt.Errorf(
					"middleware %q declares state field %q already declared by %q; rename the field or share it through a single middleware",
					mw.Name, spec.Name, prev)
			}
			owner[spec.Name] = mw.Name
			specs = append(specs, spec)
		}
	}

	return graph.NewSchema(specs...)
}
