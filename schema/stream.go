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

package schema

import (
	"io"
	"sync"
)

type streamItem[T any] struct {
	v   T
	err error
}

// StreamReader is the receiving end of a stream created by Pipe.
// Recv returns io.EOF after the writer closes and all items are drained.
type StreamReader[T any] struct {
	ch        chan streamItem[T]
	closeOnce sync.Once
	closed    chan struct{}
}

// StreamWriter is the sending end of a stream created by Pipe.
type StreamWriter[T any] struct {
	ch        chan streamItem[T]
	closeOnce sync.Once
	done      chan struct{}
	readerEnd chan struct{}
}

// Pipe creates a connected stream reader/writer pair with the given buffer capacity.
func Pipe[T any](cap int) (*StreamReader[T], *StreamWriter[T]) {
	ch := make(chan streamItem[T], cap)
	readerEnd := make(chan struct{})
	r := &StreamReader[T]{ch: ch, closed: readerEnd}
	w := &StreamWriter[T]{ch: ch, done: make(chan struct{}), readerEnd: readerEnd}
	return r, w
}

// Recv returns the next item from the stream. It blocks until an item
// arrives or the writer closes, in which case it returns io.EOF.
func (r *StreamReader[T]) Recv() (T, error) {
	item, ok := <-r.ch
	if !ok {
		var zero T
		return zero, io.EOF
	}
	return item.v, item.err
}

// Close releases the reader. Pending sends on the writer side will observe
// the closure and stop. Safe to call multiple times.
func (r *StreamReader[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		go func() {
			for range r.ch { // drain so the writer never blocks forever
			}
		}()
	})
}

// Send pushes an item into the stream. It reports whether the reader has
// already been closed, in which case the item is dropped and the writer
// should stop producing.
func (w *StreamWriter[T]) Send(v T, err error) (closed bool) {
	select {
	case <-w.readerEnd:
		return true
	case <-w.done:
		return true
	default:
	}

	select {
	case <-w.readerEnd:
		return true
	case <-w.done:
		return true
	case w.ch <- streamItem[T]{v: v, err: err}:
		return false
	}
}

// Close ends the stream. The reader receives io.EOF after draining.
// Safe to call multiple times.
func (w *StreamWriter[T]) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		close(w.ch)
	})
}

// StreamReaderFromArray creates a stream that yields the given items in order.
func StreamReaderFromArray[T any](items []T) *StreamReader[T] {
	r, w := Pipe[T](len(items))
	for _, item := range items {
		w.Send(item, nil)
	}
	w.Close()
	return r
}
