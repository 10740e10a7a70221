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

package chat

// EventType discriminates the events of the unified stream protocol.
type EventType string

const (
	// EventAIToken is a model output token.
	EventAIToken EventType = "ai_token"
	// EventQuestionToken is a custom payload emitted by a middleware,
	// e.g. a clarifying question streamed to the user.
	EventQuestionToken EventType = "question_token"
	// EventInterruptDetected signals a pause waiting for user input.
	// It always precedes the state update of the same superstep.
	EventInterruptDetected EventType = "interrupt_detected"
	// EventStateUpdate reports the state keys after a superstep.
	EventStateUpdate EventType = "state_update"
	// EventMessageComplete terminates a successful stream. It is not
	// emitted when the run pauses on an interrupt or fails.
	EventMessageComplete EventType = "message_complete"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// TokenMetadata locates a token within the run.
type TokenMetadata struct {
	Node string   `json:"node"`
	Step int      `json:"step"`
	Tags []string `json:"tags"`
}

// Event is one event of the unified stream. The fields used depend on
// Type; Event serializes to the wire protocol shape via the json tags.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id,omitempty"`

	// ai_token
	Content  string         `json:"content,omitempty"`
	Metadata *TokenMetadata `json:"metadata,omitempty"`

	// interrupt_detected
	InterruptID  string   `json:"interrupt_id,omitempty"`
	QuestionData any      `json:"question_data,omitempty"`
	Resumable    bool     `json:"resumable,omitempty"`
	Namespace    []string `json:"namespace,omitempty"`

	// state_update
	StateKeys    []string `json:"state_keys,omitempty"`
	HasInterrupt bool     `json:"has_interrupt,omitempty"`

	// question_token
	Data any `json:"data,omitempty"`

	// error
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}
