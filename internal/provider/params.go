package provider

import (
	"fmt"

	"github.com/phrazzld/modelgate/internal/domain"
)

// ChatMessage is a provider-neutral conversational turn extracted from the
// caller's parameter map before vendor-specific shaping.
type ChatMessage struct {
	Role    string
	Content string
}

// chatMessages extracts the conversation from a parameter map. A bare
// "prompt" string becomes a single user message; an explicit "messages"
// list is validated entry by entry.
func chatMessages(params map[string]any) ([]ChatMessage, error) {
	if raw, ok := params["messages"]; ok {
		list, ok := raw.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("%w: parameter 'messages' must be a non-empty list", domain.ErrValidation)
		}
		msgs := make([]ChatMessage, 0, len(list))
		for i, entry := range list {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: messages[%d] must be an object", domain.ErrValidation, i)
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role == "" || content == "" {
				return nil, fmt.Errorf("%w: messages[%d] requires 'role' and 'content'", domain.ErrValidation, i)
			}
			msgs = append(msgs, ChatMessage{Role: role, Content: content})
		}
		return msgs, nil
	}

	if prompt, ok := params["prompt"].(string); ok && prompt != "" {
		return []ChatMessage{{Role: "user", Content: prompt}}, nil
	}

	return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrMissingInput)
}

// intParam reads a numeric parameter, accepting the float64 that
// encoding/json produces for numbers as well as native int values.
func intParam(params map[string]any, key string, def int) int {
	raw, ok := params[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// floatParam reads a float parameter with a default.
func floatParam(params map[string]any, key string, def float64) float64 {
	raw, ok := params[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// hasParam reports whether the caller supplied the key at all, so shaping
// can distinguish "absent" from "explicitly zero".
func hasParam(params map[string]any, key string) bool {
	_, ok := params[key]
	return ok
}

// clampInt bounds v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampFloat bounds v to [lo, hi].
func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
