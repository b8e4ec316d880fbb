package llm

import (
	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// toGeminiSchema converts a JSON-schema tool parameter definition into the
// genai schema shape.
func toGeminiSchema(def jsonschema.Definition) *genai.Schema {
	schema := &genai.Schema{
		Type:        toGeminiType(def.Type),
		Description: def.Description,
		Required:    def.Required,
	}

	if len(def.Enum) > 0 {
		schema.Enum = def.Enum
	}

	if len(def.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(def.Properties))
		for name, prop := range def.Properties {
			schema.Properties[name] = toGeminiSchema(prop)
		}
	}

	if def.Items != nil {
		schema.Items = toGeminiSchema(*def.Items)
	}

	return schema
}

func toGeminiType(t jsonschema.DataType) genai.Type {
	switch t {
	case jsonschema.String:
		return genai.TypeString
	case jsonschema.Number:
		return genai.TypeNumber
	case jsonschema.Integer:
		return genai.TypeInteger
	case jsonschema.Boolean:
		return genai.TypeBoolean
	case jsonschema.Array:
		return genai.TypeArray
	case jsonschema.Object:
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
