package tools

import (
	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
)

// jsonType maps a record parameter type onto the provider's schema type.
// integer and float become number; unknown and object fall back to string.
func jsonType(t tooldomain.ParamType) string {
	switch t {
	case tooldomain.ParamInteger, tooldomain.ParamFloat:
		return "number"
	case tooldomain.ParamArray:
		return "array"
	case tooldomain.ParamBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// ParametersSchema renders the ordered parameter list as a JSON-schema object.
func ParametersSchema(params []tooldomain.Parameter) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		prop := map[string]any{"type": jsonType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if prop["type"] == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
