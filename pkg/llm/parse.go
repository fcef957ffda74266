package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	thinkTagRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// DecodeStructured decodes a model reply into out, tolerating the usual
// model quirks: markdown code fences, think tags, prose around the
// object, and slightly malformed JSON (repaired before decoding). A
// reply with no decodable object is an EmptyResponseError.
func DecodeStructured(content string, out any) error {
	candidate := extractJSON(content)
	if candidate == "" {
		return &EmptyResponseError{Message: "reply contains no JSON payload"}
	}

	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return &EmptyResponseError{Message: fmt.Sprintf("reply is not repairable JSON: %v", err)}
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return &EmptyResponseError{Message: fmt.Sprintf("repaired reply does not match schema: %v", err)}
	}
	return nil
}

// extractJSON strips non-JSON wrapping and returns the best candidate
// object or array substring.
func extractJSON(content string) string {
	content = thinkTagRe.ReplaceAllString(content, "")

	if m := codeFenceRe.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	// Trim leading/trailing prose around the outermost object or array.
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	var closer byte = '}'
	if content[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(content, closer)
	if end <= start {
		// Truncated output; let jsonrepair complete it.
		return content[start:]
	}
	return content[start : end+1]
}
