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

const (
	tooLargeToolMessage = `Tool result too large, the result of this tool call {tool_call_id} was saved in the filesystem at this path: {file_path}
You can read the result from the filesystem by using the read_file tool, but make sure to only read part of the result at a time.
You can do this by specifying an offset and limit in the read_file tool call.
For example, to read the first 100 lines, you can use the read_file tool with offset=0 and limit=100.

Here are the first 10 lines of the result:
{content_sample}`

	// ListFilesToolDesc is the default description of the ls tool.
	ListFilesToolDesc = `Lists all files in the filesystem, filtering by directory.

Usage:
- The path parameter must be an absolute path, not a relative path
- The ls tool will return a list of all files in the specified directory.
- This is very useful for exploring the file system and finding the right file to read or edit.
- You should almost ALWAYS use this tool before using the read_file or edit_file tools.`

	// ReadFileToolDesc is the default description of the read_file tool.
	ReadFileToolDesc = `Reads a file from the filesystem.

Usage:
- The file_path parameter must be an absolute path, not a relative path
- By default, it reads up to 500 lines starting from the beginning of the file
- For large files, use pagination with offset and limit parameters to avoid context overflow
- Specify offset and limit: read_file(path, offset=0, limit=100) reads first 100 lines
- Results are returned using cat -n format, with line numbers starting at 1
- If you read a file that exists but has empty contents you will receive a system reminder warning in place of file contents.
- You should ALWAYS make sure a file has been read before editing it.`

	// WriteFileToolDesc is the default description of the write_file tool.
	WriteFileToolDesc = `Writes a file to the filesystem.

Usage:
- This tool will overwrite the existing file if there is one at the provided path.
- If this is an existing file, you MUST use the read_file tool first to read the file's contents.
- ALWAYS prefer editing existing files. NEVER write new files unless explicitly required.`

	// EditFileToolDesc is the default description of the edit_file tool.
	EditFileToolDesc = `Performs exact string replacements in files.

Usage:
- You must use the 'read_file' tool at least once before editing.
- old_string must match exactly, including whitespace.
- The edit will FAIL if 'old_string' is not unique in the file. Either provide a larger string with more surrounding context to make it unique or use 'replace_all' to change every instance of 'old_string'.
- Use 'replace_all' for replacing and renaming strings across the file.`

	// GlobToolDesc is the default description of the glob tool.
	GlobToolDesc = `Fast file pattern matching tool.
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths
- Use this tool when you need to find files by name patterns

Examples:
- '**/*.py' - Find all Python files
- '*.txt' - Find all text files in root
- '/subdir/**/*.md' - Find all markdown files under /subdir`

	// GrepToolDesc is the default description of the grep tool.
	GrepToolDesc = `Search for a pattern in files.

Usage:
- pattern: Text to search for (literal string, not a regex)
- path: Optional directory to search in
- glob: Optional glob pattern to filter files (e.g., *.py)
- output_mode: "files_with_matches" (default), "content", or "count"`

	// ToolsSystemPrompt is appended to the agent's system prompt when the
	// middleware is active.
	ToolsSystemPrompt = `## Filesystem Tools 'ls', 'read_file', 'write_file', 'edit_file', 'glob', 'grep'

You have access to a filesystem which you can interact with using these tools.
All file paths must start with a '/'.

- ls: list files in a directory (requires absolute path)
- read_file: read a file from the filesystem
- write_file: write to a file in the filesystem
- edit_file: edit a file in the filesystem
- glob: find files matching a pattern (e.g., "**/*.py")
- grep: search for text within files`
)
