package llm

import "strings"

// CleanJSONBlock strips a markdown code fence from a scene reply. Models wrap
// structured replies in ```json fences often enough that every reply goes
// through here before schema validation. Free-text replies without a fence
// pass through untouched apart from whitespace trimming.
func CleanJSONBlock(reply string) string {
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "```") {
		return reply
	}
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimPrefix(reply, "json")
	if end := strings.LastIndex(reply, "```"); end >= 0 {
		reply = reply[:end]
	}
	return strings.TrimSpace(reply)
}
