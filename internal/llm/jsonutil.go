package llm

import (
	"regexp"
	"strings"
)

// fencePattern matches a whole response wrapped in a markdown code block: ```json ... ```
var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\s*```$")

// StripCodeFence removes a markdown code fence wrapped around a model response.
// Text without a fence is only trimmed. Unlike a full JSON extraction the
// content between the fences is left untouched, so truncated output stays
// truncated and is still caught by structural checks.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if matches := fencePattern.FindStringSubmatch(trimmed); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return trimmed
}
