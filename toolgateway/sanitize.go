package toolgateway

import "strings"

// sanitizeSchema normalizes a JSON schema map in-place to meet the stricter
// shape every LLM provider's function-tool format expects: object schemas
// always carry a properties map, array schemas always carry an items
// schema. Adapted verbatim from internal/mcpclient/mcpclient.go's
// sanitizeSchema, which exists for the same reason (MCP servers are free to
// omit either).
func sanitizeSchema(s map[string]any, prop string) {
	hasType := func(v any, want string) bool {
		switch tt := v.(type) {
		case string:
			return tt == want
		case []any:
			for _, x := range tt {
				if xs, ok := x.(string); ok && xs == want {
					return true
				}
			}
		case []string:
			for _, xs := range tt {
				if xs == want {
					return true
				}
			}
		}
		return false
	}

	if hasType(s["type"], "object") {
		if _, ok := s["properties"].(map[string]any); !ok {
			s["properties"] = map[string]any{}
		}
	}
	if hasType(s["type"], "array") {
		if _, ok := s["items"].(map[string]any); !ok {
			s["items"] = map[string]any{"type": "string"}
		}
	}
	if props, ok := s["properties"].(map[string]any); ok {
		for k, v := range props {
			if m, ok := v.(map[string]any); ok {
				sanitizeSchema(m, k)
			}
		}
	}
	if it, ok := s["items"].(map[string]any); ok {
		sanitizeSchema(it, prop+"[]")
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if arr, ok := s[key].([]any); ok {
			for _, v := range arr {
				if m, ok := v.(map[string]any); ok {
					sanitizeSchema(m, prop)
				}
			}
		}
	}
	if req, ok := s["required"]; ok {
		if rr, ok := req.([]any); ok {
			out := make([]string, 0, len(rr))
			for _, x := range rr {
				if xs, ok := x.(string); ok {
					out = append(out, xs)
				}
			}
			s["required"] = out
		}
	}
}

// sanitizeName replaces characters a tool name may carry from its server
// (spaces, slashes, colons) but that providers reject, with underscores.
func sanitizeName(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
