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
	"strconv"
	"strings"

	"github.com/slongfield/pyfmt"

	"github.com/cloudwego/agentkit/agent"
	"github.com/cloudwego/agentkit/schema"
	"github.com/cloudwego/agentkit/tool"
)

// MiddlewareName is the registered name of the filesystem middleware.
const MiddlewareName = "filesystem"

const (
	defaultOffloadTokenLimit = 20000
	offloadDir               = "/large_tool_results"
	maxLineLen               = 2000
	sampleLines              = 10
	sampleLineLen            = 1000
)

// filesystemToolNames are exempt from result offloading; their output is
// already paged by the tools themselves.
var filesystemToolNames = map[string]bool{
	"ls":         true,
	"read_file":  true,
	"write_file": true,
	"edit_file":  true,
	"glob":       true,
	"grep":       true,
}

// Config configures the filesystem middleware.
type Config struct {
	// Backend provides the storage behind the tools and offloading.
	// Optional, a fresh InMemoryBackend by default.
	Backend Backend

	// CustomSystemPrompt replaces the default prompt section appended to
	// the agent's system prompt.
	CustomSystemPrompt *string

	// WithoutLargeToolResultOffloading disables saving oversized tool
	// results to the backend.
	WithoutLargeToolResultOffloading bool

	// OffloadingTokenLimit is the token threshold above which a tool
	// result is offloaded, estimated at 4 characters per token.
	// Optional, 20000 by default.
	OffloadingTokenLimit int
}

// New builds the filesystem middleware.
func New(config *Config) (*agent.Middleware, error) {
	if config == nil {
		config = &Config{}
	}
	backend := config.Backend
	if backend == nil {
		backend = NewInMemoryBackend()
	}

	tools, err := buildTools(backend)
	if err != nil {
		return nil, err
	}

	systemPrompt := ToolsSystemPrompt
	if config.CustomSystemPrompt != nil {
		systemPrompt = *config.CustomSystemPrompt
	}

	m := &agent.Middleware{
		Name:  MiddlewareName,
		Tools: tools,
		WrapModelCall: func(ctx context.Context, req *agent.ModelRequest, next agent.ModelCallHandler) (*agent.ModelResponse, error) {
			if systemPrompt == "" {
				return next(ctx, req)
			}
			req = req.Clone()
			if req.SystemPrompt != "" {
				req.SystemPrompt += "\n\n" + systemPrompt
			} else {
				req.SystemPrompt = systemPrompt
			}
			return next(ctx, req)
		},
	}

	if !config.WithoutLargeToolResultOffloading {
		limit := config.OffloadingTokenLimit
		if limit <= 0 {
			limit = defaultOffloadTokenLimit
		}
		m.WrapToolCall = newResultOffloading(backend, limit)
	}

	return m, nil
}

// newResultOffloading intercepts tool results larger than 4x the token
// limit in characters, saves them to the backend and hands the model a
// pointer message with a short sample instead.
func newResultOffloading(backend Backend, tokenLimit int) agent.ToolCallMiddleware {
	return func(ctx context.Context, req *agent.ToolCallRequest, next agent.ToolCallHandler) (*agent.ToolCallResponse, error) {
		resp, err := next(ctx, req)
		if err != nil || resp == nil || resp.Message == nil {
			return resp, err
		}
		if filesystemToolNames[req.Call.Function.Name] {
			return resp, nil
		}
		content := resp.Message.Content
		if len(content) <= 4*tokenLimit {
			return resp, nil
		}

		sanitized := strings.NewReplacer("/", "_", "\\", "_").Replace(req.Call.ID)
		filePath := offloadDir + "/" + sanitized
		if werr := backend.Write(ctx, filePath, content); werr != nil {
			// keep the original result if offloading is impossible
			return resp, nil
		}

		pointer, ferr := pyfmt.Fmt(tooLargeToolMessage, map[string]any{
			"tool_call_id":   req.Call.ID,
			"file_path":      filePath,
			"content_sample": sampleOf(content),
		})
		if ferr != nil {
			return nil, ferr
		}

		msg := schema.ToolMessage(pointer, resp.Message.ToolCallID, schema.WithToolName(resp.Message.ToolName))
		msg.ID = resp.Message.ID
		resp.Message = msg
		return resp, nil
	}
}

// sampleOf returns the first lines of an offloaded result, numbered and
// capped so the sample itself stays small.
func sampleOf(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > sampleLines {
		lines = lines[:sampleLines]
	}
	var b strings.Builder
	for i, line := range lines {
		if len(line) > sampleLineLen {
			line = line[:sampleLineLen]
		}
		fmt.Fprintf(&b, "%d\t%s\n", i+1, line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func buildTools(backend Backend) ([]tool.BaseTool, error) {
	var tools []tool.BaseTool
	for _, build := range []func(Backend) (tool.InvokableTool, error){
		newLsTool, newReadFileTool, newWriteFileTool, newEditFileTool, newGlobTool, newGrepTool,
	} {
		t, err := build(backend)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func validatePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("path must be absolute (start with /), got: %s", p)
	}
	return nil
}

type lsArgs struct {
	Path string `json:"path" jsonschema:"description=Absolute directory path to list"`
}

func newLsTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("ls", ListFilesToolDesc, func(ctx context.Context, input lsArgs) (string, error) {
		if err := validatePath(input.Path); err != nil {
			return "", err
		}
		infos, err := backend.List(ctx, input.Path)
		if err != nil {
			return "", err
		}
		paths := make([]string, 0, len(infos))
		for _, fi := range infos {
			paths = append(paths, fi.Path)
		}
		return strings.Join(paths, "\n"), nil
	})
}

type readFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"description=Absolute path of the file to read"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=Line number to start reading from (0-indexed)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read (default 500)"`
}

func newReadFileTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("read_file", ReadFileToolDesc, func(ctx context.Context, input readFileArgs) (string, error) {
		if err := validatePath(input.FilePath); err != nil {
			return "", err
		}
		if input.Offset < 0 {
			input.Offset = 0
		}
		content, err := backend.Read(ctx, input.FilePath, input.Offset, input.Limit)
		if err != nil {
			return "", err
		}
		if content == "" {
			return "System reminder: file exists but has empty contents", nil
		}

		var b strings.Builder
		for i, line := range strings.Split(content, "\n") {
			if len(line) > maxLineLen {
				line = line[:maxLineLen]
			}
			b.WriteString(strconv.Itoa(input.Offset + i + 1))
			b.WriteString("\t")
			b.WriteString(line)
			b.WriteString("\n")
		}
		return strings.TrimSuffix(b.String(), "\n"), nil
	})
}

type writeFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"description=Absolute path of the file to write"`
	Content  string `json:"content" jsonschema:"description=Full file content"`
}

func newWriteFileTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("write_file", WriteFileToolDesc, func(ctx context.Context, input writeFileArgs) (string, error) {
		if err := validatePath(input.FilePath); err != nil {
			return "", err
		}
		if err := backend.Write(ctx, input.FilePath, input.Content); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated file %s", input.FilePath), nil
	})
}

type editFileArgs struct {
	FilePath   string `json:"file_path" jsonschema:"description=Absolute path of the file to edit"`
	OldString  string `json:"old_string" jsonschema:"description=Exact string to replace"`
	NewString  string `json:"new_string" jsonschema:"description=Replacement string"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring a unique match"`
}

func newEditFileTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("edit_file", EditFileToolDesc, func(ctx context.Context, input editFileArgs) (string, error) {
		if err := validatePath(input.FilePath); err != nil {
			return "", err
		}
		n, err := backend.Edit(ctx, input.FilePath, input.OldString, input.NewString, input.ReplaceAll)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully replaced %d instance(s) in '%s'", n, input.FilePath), nil
	})
}

type globArgs struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern, e.g. **/*.py"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search in (default /)"`
}

func newGlobTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("glob", GlobToolDesc, func(ctx context.Context, input globArgs) (string, error) {
		infos, err := backend.Glob(ctx, input.Pattern, input.Path)
		if err != nil {
			return "", err
		}
		paths := make([]string, 0, len(infos))
		for _, fi := range infos {
			paths = append(paths, fi.Path)
		}
		return strings.Join(paths, "\n"), nil
	})
}

type grepArgs struct {
	Pattern    string `json:"pattern" jsonschema:"description=Literal text to search for"`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory to search in"`
	Glob       string `json:"glob,omitempty" jsonschema:"description=Glob pattern to filter files, e.g. *.py"`
	OutputMode string `json:"output_mode,omitempty" jsonschema:"enum=files_with_matches,enum=content,enum=count,description=Output format (default files_with_matches)"`
}

func newGrepTool(backend Backend) (tool.InvokableTool, error) {
	return tool.InferTool("grep", GrepToolDesc, func(ctx context.Context, input grepArgs) (string, error) {
		matches, err := backend.Grep(ctx, input.Pattern, input.Path, input.Glob)
		if err != nil {
			return "", err
		}

		switch input.OutputMode {
		case "content":
			var b strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&b, "%s:%d:%s\n", m.Path, m.Line, m.Content)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil

		case "count":
			counts := make(map[string]int)
			var order []string
			for _, m := range matches {
				if counts[m.Path] == 0 {
					order = append(order, m.Path)
				}
				counts[m.Path]++
			}
			var b strings.Builder
			for _, p := range order {
				fmt.Fprintf(&b, "%s:%d\n", p, counts[p])
			}
			return strings.TrimSuffix(b.String(), "\n"), nil

		default:
			var paths []string
			seen := make(map[string]bool)
			for _, m := range matches {
				if !seen[m.Path] {
					paths = append(paths, m.Path)
					seen[m.Path] = true
				}
			}
			return strings.Join(paths, "\n"), nil
		}
	})
}
