package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGeminiSchemaNested(t *testing.T) {
	def := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"date": {
				Type:        jsonschema.String,
				Description: "Fecha en formato YYYY-MM-DD.",
			},
			"guests": {
				Type: jsonschema.Integer,
			},
			"tags": {
				Type:  jsonschema.Array,
				Items: &jsonschema.Definition{Type: jsonschema.String},
			},
		},
		Required: []string{"date"},
	}

	got := toGeminiSchema(def)

	assert.Equal(t, genai.TypeObject, got.Type)
	assert.Equal(t, []string{"date"}, got.Required)
	require.Len(t, got.Properties, 3)
	assert.Equal(t, genai.TypeString, got.Properties["date"].Type)
	assert.Equal(t, "Fecha en formato YYYY-MM-DD.", got.Properties["date"].Description)
	assert.Equal(t, genai.TypeInteger, got.Properties["guests"].Type)
	require.NotNil(t, got.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, got.Properties["tags"].Items.Type)
}

func TestToGeminiSchemaFreeFormObject(t *testing.T) {
	// update_contact declares updates as an object with no fixed
	// properties; the conversion must still emit an object schema.
	def := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"updates": {
				Type:                 jsonschema.Object,
				AdditionalProperties: true,
			},
		},
		Required: []string{"updates"},
	}

	got := toGeminiSchema(def)

	require.Contains(t, got.Properties, "updates")
	assert.Equal(t, genai.TypeObject, got.Properties["updates"].Type)
	assert.Empty(t, got.Properties["updates"].Properties)
}

func TestToGeminiSchemaEnum(t *testing.T) {
	def := jsonschema.Definition{
		Type: jsonschema.String,
		Enum: []string{"FORMAL", "NORMAL", "CASUAL"},
	}

	got := toGeminiSchema(def)
	assert.Equal(t, genai.TypeString, got.Type)
	assert.Equal(t, []string{"FORMAL", "NORMAL", "CASUAL"}, got.Enum)
}
