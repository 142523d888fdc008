package calc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in reply")

// ExtractJSON finds the JSON object in an agent reply. A ```json fenced block
// wins; otherwise the first balanced {...} object in the text is used.
func ExtractJSON(content string) (string, error) {
	if block, ok := fencedBlock(content); ok {
		return block, nil
	}
	if obj, ok := balancedObject(content); ok {
		return obj, nil
	}
	return "", ErrNoJSON
}

// DecodeObject extracts and decodes the JSON object in an agent reply.
func DecodeObject(content string) (map[string]any, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode reply JSON: %w", err)
	}
	if obj == nil {
		return nil, ErrNoJSON
	}
	return obj, nil
}

func fencedBlock(content string) (string, bool) {
	var sb strings.Builder
	in := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !in && strings.HasPrefix(trimmed, "```json"):
			in = true
		case in && strings.HasPrefix(trimmed, "```"):
			if block := strings.TrimSpace(sb.String()); block != "" {
				return block, true
			}
			in = false
			sb.Reset()
		case in:
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return "", false
}

// balancedObject returns the first {...} span whose braces balance, ignoring
// braces inside JSON strings.
func balancedObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(content); i++ {
			c := content[i]
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
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return content[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
