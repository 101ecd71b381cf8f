package llm

import "strings"

// CleanJSONBlock returns the first complete JSON object or array in a model
// response, dropping markdown fences, preambles and trailing chatter. Text with
// no balanced JSON value is returned trimmed so the caller's decoder reports it.
func CleanJSONBlock(text string) string {
	text = stripFence(strings.TrimSpace(text))
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	if value, ok := balancedValue(text[start:]); ok {
		return value
	}
	return text
}

// stripFence removes a surrounding ``` fence and its language tag
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isLanguageTag(body[:nl]) {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(line string) bool {
	return len(line) < 20 && !strings.ContainsAny(line, " {[")
}

// balancedValue returns the object or array that opens at s[0], honoring
// string literals and escapes
func balancedValue(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	var closing byte
	switch s[0] {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return "", false
	}

	open := s[0]
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
