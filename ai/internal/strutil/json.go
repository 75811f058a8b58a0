package strutil

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject returns the first complete JSON object in response.
// Models often wrap JSON in prose or code fences; when no valid object is
// found the trimmed input is returned unchanged.
func ExtractJSONObject(response string) string {
	trimmed := strings.TrimSpace(response)

	var temp any
	if json.Unmarshal([]byte(trimmed), &temp) == nil {
		return trimmed
	}

	for start := strings.Index(trimmed, "{"); start >= 0; {
		if end := matchBrace(trimmed, start); end > 0 {
			candidate := trimmed[start : end+1]
			if json.Unmarshal([]byte(candidate), &temp) == nil {
				return candidate
			}
		}
		next := strings.Index(trimmed[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return trimmed
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
