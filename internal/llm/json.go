package llm

import (
	"encoding/json"
	"log"
	"strings"
)

// ParseJSONResponse parses a JSON object response from an LLM, handling
// markdown code blocks. Returns nil if the text is not a JSON object.
func ParseJSONResponse(text string) map[string]any {
	text = stripFences(text)
	if text == "" {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		log.Printf("Failed to parse LLM response as JSON: %v", err)
		return nil
	}

	return result
}

// ParseJSONArray parses a JSON array response from an LLM, handling markdown
// code blocks. Some models wrap the array in an object with a single array
// field; that shape is unwrapped too. Returns nil if no array can be found.
func ParseJSONArray(text string) []map[string]any {
	text = stripFences(text)
	if text == "" {
		return nil
	}

	var raw []any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		// Try the wrapped-object shape: {"results": [...]}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			log.Printf("Failed to parse LLM response as JSON array: %v", err)
			return nil
		}
		raw = nil
		for _, v := range obj {
			if arr, ok := v.([]any); ok {
				raw = arr
				break
			}
		}
		if raw == nil {
			return nil
		}
	}

	var result []map[string]any
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			result = append(result, m)
		}
	}
	return result
}

// GetString reads a string field from a parsed response, with fallback.
func GetString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// GetInt reads a numeric field from a parsed response, with fallback.
func GetInt(m map[string]any, key string, fallback int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return fallback
}

// GetBool reads a boolean field from a parsed response, with fallback.
func GetBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// GetFloat reads a float field from a parsed response, with fallback.
func GetFloat(m map[string]any, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return fallback
}

// stripFences trims whitespace and removes markdown code fences.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}
