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

package subagents

const taskToolDescription = `Launch an ephemeral subagent to handle complex, multi-step independent tasks with isolated context windows.

Available agent types:
{available_agents}

When using the task tool, specify a subagent_type parameter to select which agent type to use.

## Usage notes:
1. Launch multiple agents concurrently whenever possible
2. Each agent returns a single message back to you
3. Each agent invocation is stateless
4. Clearly tell the agent whether to create content, perform analysis, or research
5. Use for context isolation and complex multi-step tasks`
