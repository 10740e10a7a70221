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

package summarization

const (
	summarySystemPrompt = `You are a helpful assistant tasked with summarizing conversation history. You produce concise but complete summaries that preserve all information needed to continue the work.`

	summaryInstruction = `Summarize the conversation above. Your summary MUST preserve:
1. The user's original request and any follow-up requirements
2. Key decisions that were made and why
3. The current state of the work: what has been done, what remains
4. Any important facts, file paths, names or values discovered along the way
5. Errors encountered and how they were resolved

Write the summary as plain prose. Do not include pleasantries or meta commentary about the summarization itself.`
)
