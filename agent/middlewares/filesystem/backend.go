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

// Package filesystem gives an agent a virtual filesystem: ls, read_file,
// write_file, edit_file, glob and grep tools over a pluggable Backend,
// plus automatic offloading of oversized tool results into that
// filesystem so they never flood the model context.
package filesystem

import (
	"context"
)

// FileInfo is basic metadata of one file.
type FileInfo struct {
	Path string
}

// GrepMatch is a single line match of a grep search.
type GrepMatch struct {
	Path string
	// Line is 1-based.
	Line    int
	Content string
}

// Backend is the pluggable storage behind the filesystem tools. All
// paths are absolute, starting with "/".
type Backend interface {
	// List returns the immediate children under path. Empty path means
	// the root "/".
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Read returns up to limit lines of a file starting at the 0-based
	// line offset. Negative offset reads from the start; limit <= 0 uses
	// the backend default. Reading a missing file is an error.
	Read(ctx context.Context, filePath string, offset, limit int) (string, error)

	// Write creates the file or overwrites its previous content.
	Write(ctx context.Context, filePath, content string) error

	// Edit replaces occurrences of oldString with newString. Without
	// replaceAll, oldString must occur exactly once. Editing a missing
	// file or a string that does not occur is an error.
	Edit(ctx context.Context, filePath, oldString, newString string, replaceAll bool) (occurrences int, err error)

	// Glob returns files under path whose paths match the glob pattern.
	// "**" matches any number of path segments.
	Glob(ctx context.Context, pattern, path string) ([]FileInfo, error)

	// Grep returns line matches of a literal substring search, optionally
	// limited to a directory and filtered by a base-name glob.
	Grep(ctx context.Context, pattern, path, glob string) ([]GrepMatch, error)
}
