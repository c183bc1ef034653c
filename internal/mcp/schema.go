package mcp

import (
	"encoding/json"

	"toolgate/internal/tools"
)

// jsonSchema is the subset of JSON Schema children declare for tool input.
type jsonSchema struct {
	Type       any                   `json:"type"`
	Descr      string                `json:"description"`
	Properties map[string]jsonSchema `json:"properties"`
	Required   []string              `json:"required"`
	Items      *jsonSchema           `json:"items"`
	Enum       []any                 `json:"enum"`
	Default    any                   `json:"default"`
	AnyOf      []jsonSchema          `json:"anyOf"`
	OneOf      []jsonSchema          `json:"oneOf"`
}

// TranslateSchema converts a child's declared input schema into the host
// schema representation. The translation is total: an empty, unparseable
// or non-object schema surfaces as a tool taking no arguments, and any
// shape the mapping does not recognize degrades to "any" rather than
// failing.
func TranslateSchema(raw json.RawMessage) tools.ToolSchema {
	empty := tools.ToolSchema{Required: []string{}, Properties: map[string]tools.Property{}}
	if len(raw) == 0 {
		return empty
	}

	var schema jsonSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return empty
	}
	if typeName(schema.Type) != "object" && schema.Properties == nil {
		return empty
	}

	out := tools.ToolSchema{
		Required:   append([]string{}, schema.Required...),
		Properties: make(map[string]tools.Property, len(schema.Properties)),
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	for name, prop := range schema.Properties {
		out.Properties[name] = translateProperty(prop)
	}
	return out
}

// translateProperty maps one schema node field-by-field, recursing into
// arrays and objects.
func translateProperty(s jsonSchema) tools.Property {
	p := tools.Property{
		Type:        typeName(s.Type),
		Description: s.Descr,
		Default:     s.Default,
		Enum:        s.Enum,
	}

	// Union shapes: a type list or anyOf/oneOf picks the first concrete
	// alternative; mixed unions degrade to "any".
	if p.Type == "" {
		if alt := firstAlternative(s.AnyOf); alt != nil {
			inner := translateProperty(*alt)
			inner.Description = orElse(p.Description, inner.Description)
			return inner
		}
		if alt := firstAlternative(s.OneOf); alt != nil {
			inner := translateProperty(*alt)
			inner.Description = orElse(p.Description, inner.Description)
			return inner
		}
	}

	switch p.Type {
	case "array":
		if s.Items != nil {
			items := translateProperty(*s.Items)
			p.Items = &items
		}
	case "object":
		if len(s.Properties) > 0 {
			p.Properties = make(map[string]tools.Property, len(s.Properties))
			for name, sub := range s.Properties {
				p.Properties[name] = translateProperty(sub)
			}
			p.Required = append([]string{}, s.Required...)
		}
	case "string", "number", "integer", "boolean", "null":
		// Scalars map one-to-one.
	default:
		// Unknown shape: "any".
		p.Type = ""
	}
	return p
}

// typeName normalizes a schema "type" field: a plain string passes
// through, a type list picks the first non-null entry, anything else is
// unknown.
func typeName(t any) string {
	switch v := t.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// firstAlternative returns the first usable union branch.
func firstAlternative(alts []jsonSchema) *jsonSchema {
	for i := range alts {
		if typeName(alts[i].Type) != "" || alts[i].Properties != nil {
			return &alts[i]
		}
	}
	return nil
}

func orElse(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
