package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON unmarshals a model response into T, tolerating the usual quirks:
// markdown fences, leading prose, trailing commentary. It keeps the slice
// between the first '{' and the last '}'.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	s := strings.TrimSpace(response)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return zero, fmt.Errorf("no JSON object found in response")
	}

	var result T
	if err := json.Unmarshal([]byte(s[start:end+1]), &result); err != nil {
		return zero, fmt.Errorf("unmarshal model response: %w", err)
	}
	return result, nil
}
