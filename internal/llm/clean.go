package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence, including an
// optional language tag, returning the inner text unchanged otherwise.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")
	if len(lines) < 2 {
		return t
	}
	end := len(lines) - 1
	for ; end > 0; end-- {
		if strings.TrimSpace(lines[end]) == "```" {
			break
		}
	}
	if end == 0 {
		// Opening fence with no close: drop the fence line only.
		return strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

// ExtractJSON locates and parses the first complete JSON value in a
// possibly noisy response. It strips fences, seeks the first object or
// array opener, and uses the standard decoder to read exactly one
// value, so trailing prose never corrupts the payload.
func ExtractJSON(s string) (json.RawMessage, error) {
	t := StripFences(s)
	idx := strings.IndexAny(t, "{[")
	if idx < 0 {
		return nil, fmt.Errorf("no JSON value found in response")
	}

	dec := json.NewDecoder(strings.NewReader(t[idx:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing JSON from response: %w", err)
	}
	return raw, nil
}

// DecodeJSON extracts the first JSON value from a noisy response and
// unmarshals it into v.
func DecodeJSON(s string, v any) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding response payload: %w", err)
	}
	return nil
}
