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

package safe

import (
	"fmt"
)

// PanicErr wraps a recovered panic value and the stack where it happened,
// so goroutines pumping events can surface panics as ordinary errors.
type PanicErr struct {
	Info  any
	Stack []byte
}

func (p *PanicErr) Error() string {
	return fmt.Sprintf("panic: %v\nstack: %s", p.Info, string(p.Stack))
}

// NewPanicErr creates a PanicErr from a recovered value and a stack trace.
func NewPanicErr(info any, stack []byte) error {
	return &PanicErr{
		Info:  info,
		Stack: stack,
	}
}
