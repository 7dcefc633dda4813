package tools

// JSON Schema builders for tool input schemas.

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enumProp(description string, values []string, def string) map[string]any {
	p := map[string]any{"type": "string", "description": description, "enum": values}
	if def != "" {
		p["default"] = def
	}
	return p
}

func countProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description, "minimum": 1, "default": 1}
}
