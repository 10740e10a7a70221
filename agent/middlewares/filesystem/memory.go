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

package filesystem

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// InMemoryBackend stores files in a map. Safe for concurrent use.
type InMemoryBackend struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewInMemoryBackend creates an empty in-memory backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{files: make(map[string]string)}
}

const defaultReadLimit = 500

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// underDir reports whether file lives under dir (or equals it).
func underDir(file, dir string) bool {
	return dir == "/" || file == dir || strings.HasPrefix(file, dir+"/")
}

func (b *InMemoryBackend) List(_ context.Context, dir string) ([]FileInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dir = normalizePath(dir)
	seen := make(map[string]bool)
	var result []FileInfo

	for fp := range b.files {
		fp = normalizePath(fp)
		if !underDir(fp, dir) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(fp, dir), "/")
		if rel == "" {
			// dir itself is a file
			if !seen[fp] {
				result = append(result, FileInfo{Path: fp})
				seen[fp] = true
			}
			continue
		}
		child := dir
		if child != "/" {
			child += "/"
		}
		child += strings.SplitN(rel, "/", 2)[0]
		if !seen[child] {
			result = append(result, FileInfo{Path: child})
			seen[child] = true
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

func (b *InMemoryBackend) Read(_ context.Context, filePath string, offset, limit int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	filePath = normalizePath(filePath)
	content, ok := b.files[filePath]
	if !ok {
		return "", fmt.Errorf("file not found: %s", filePath)
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	lines := strings.Split(content, "\n")
	if offset >= len(lines) {
		return "", nil
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[offset:end], "\n"), nil
}

func (b *InMemoryBackend) Write(_ context.Context, filePath, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.files[normalizePath(filePath)] = content
	return nil
}

func (b *InMemoryBackend) Edit(_ context.Context, filePath, oldString, newString string, replaceAll bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filePath = normalizePath(filePath)
	content, ok := b.files[filePath]
	if !ok {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}
	if oldString == "" {
		return 0, fmt.Errorf("old_string must be non-empty")
	}

	n := strings.Count(content, oldString)
	if n == 0 {
		return 0, fmt.Errorf("old_string not found in file: %s", filePath)
	}
	if !replaceAll {
		if n > 1 {
			return 0, fmt.Errorf("old_string occurs %d times in %s, provide more context or set replace_all", n, filePath)
		}
		b.files[filePath] = strings.Replace(content, oldString, newString, 1)
		return 1, nil
	}
	b.files[filePath] = strings.ReplaceAll(content, oldString, newString)
	return n, nil
}

func (b *InMemoryBackend) Glob(_ context.Context, pattern, dir string) ([]FileInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dir = normalizePath(dir)
	var result []FileInfo
	for fp := range b.files {
		fp = normalizePath(fp)
		if !underDir(fp, dir) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(fp, dir), "/")
		matched, err := globMatch(pattern, rel)
		if err != nil {
			return nil, err
		}
		if matched {
			result = append(result, FileInfo{Path: fp})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

func (b *InMemoryBackend) Grep(_ context.Context, pattern, dir, glob string) ([]GrepMatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dir = normalizePath(dir)
	var matches []GrepMatch
	var paths []string
	for fp := range b.files {
		paths = append(paths, normalizePath(fp))
	}
	sort.Strings(paths)

	for _, fp := range paths {
		if !underDir(fp, dir) {
			continue
		}
		if glob != "" {
			matched, err := path.Match(glob, path.Base(fp))
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		for i, line := range strings.Split(b.files[fp], "\n") {
			if strings.Contains(line, pattern) {
				matches = append(matches, GrepMatch{Path: fp, Line: i + 1, Content: line})
			}
		}
	}
	return matches, nil
}

// globMatch matches a relative path against a glob pattern where "**"
// spans any number of segments and the remaining syntax is path.Match.
func globMatch(pattern, name string) (bool, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	return segMatch(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func segMatch(pat, segs []string) (bool, error) {
	for len(pat) > 0 {
		if pat[0] == "**" {
			for i := 0; i <= len(segs); i++ {
				ok, err := segMatch(pat[1:], segs[i:])
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil
		}
		if len(segs) == 0 {
			return false, nil
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern: %w", err)
		}
		if !ok {
			return false, nil
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0, nil
}
