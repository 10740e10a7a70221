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
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/agentkit/schema"
)

func init() {
	schema.RegisterName[*Checkpoint]("_agentkit_checkpoint")
	schema.RegisterName[State]("_agentkit_state")
	schema.RegisterName[TaskSpec]("_agentkit_task_spec")
}

// ErrStateNotFound is returned when a thread has no checkpoint yet.
var ErrStateNotFound = errors.New("no checkpoint found for thread")

// TaskSpec identifies one schedulable task: a node, optionally carrying a
// Send input for fan-out instances.
type TaskSpec struct {
	Node   string
	Input  any
	IsSend bool
	// TaskID is the stable identity used for interrupt addressing. For
	// plain tasks it equals Node; for sends it is derived from the input.
	TaskID string
}

// Checkpoint is a full snapshot of a thread after one superstep.
type Checkpoint struct {
	ID    string
	Step  int
	State State
	// Next is the frontier to execute when the thread continues.
	Next []TaskSpec
	// Interrupts are the pauses waiting for resume values.
	Interrupts []*PendingInterrupt
	// ResumeValues are interrupt resume values already consumed by partially
	// completed tasks, replayed on rerun.
	ResumeValues map[string]any
	// Deferred are nodes that completed in an interrupted superstep. Their
	// routing decisions are postponed until the interrupted tasks finish,
	// so a paused superstep never leaks successors into the frontier.
	Deferred []string
	// Source records what produced the checkpoint: "input", "loop" or "update".
	Source    string
	CreatedAt time.Time
}

// StateSnapshot is the public view of a checkpoint.
type StateSnapshot struct {
	CheckpointID string
	Step         int
	Values       State
	Next         []string
	Interrupts   []*PendingInterrupt
	CreatedAt    time.Time
}

// CheckpointStore persists thread checkpoints. Implementations must keep
// the full per-thread history in insertion order.
type CheckpointStore interface {
	Put(ctx context.Context, threadID string, cp *Checkpoint) error
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)
}

// InMemoryStore is a CheckpointStore for tests and single-process use.
// Checkpoints are round-tripped through gob so stored state is isolated
// from later mutation and guaranteed serializable.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

// NewInMemoryStore creates an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string][]*Checkpoint)}
}

func copyCheckpoint(cp *Checkpoint) (*Checkpoint, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(cp); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	out := &Checkpoint{}
	if err := gob.NewDecoder(buf).Decode(out); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return out, nil
}

// Put stores a checkpoint for a thread.
func (s *InMemoryStore) Put(_ context.Context, threadID string, cp *Checkpoint) error {
	copied, err := copyCheckpoint(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], copied)
	return nil
}

// Latest returns the most recent checkpoint of a thread.
func (s *InMemoryStore) Latest(_ context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrStateNotFound
	}
	return copyCheckpoint(cps[len(cps)-1])
}

// List returns all checkpoints of a thread, oldest first.
func (s *InMemoryStore) List(_ context.Context, threadID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.threads[threadID]
	out := make([]*Checkpoint, 0, len(cps))
	for _, cp := range cps {
		copied, err := copyCheckpoint(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}
