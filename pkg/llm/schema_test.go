package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleContract struct {
	Decision   string   `json:"decision" description:"HOLD or EXECUTE_TRADE"`
	Confidence int      `json:"confidence"`
	Quantity   float64  `json:"quantity,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	hidden     string
	Skipped    string `json:"-"`
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema(&sampleContract{})
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "decision")
	assert.Contains(t, props, "confidence")
	assert.Contains(t, props, "quantity")
	assert.NotContains(t, props, "hidden")
	assert.NotContains(t, props, "Skipped")

	decision := props["decision"].(map[string]any)
	assert.Equal(t, "string", decision["type"])
	assert.Equal(t, "HOLD or EXECUTE_TRADE", decision["description"])

	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])

	required := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"decision", "confidence"}, required)
}

func TestGenerateSchemaNestedStruct(t *testing.T) {
	type inner struct {
		Level float64 `json:"level"`
	}
	type outer struct {
		Stop inner `json:"stop"`
	}
	schema, err := GenerateSchema(&outer{})
	require.NoError(t, err)
	props := schema["properties"].(map[string]any)
	stop := props["stop"].(map[string]any)
	assert.Equal(t, "object", stop["type"])
}

func TestGenerateSchemaRejectsNonStruct(t *testing.T) {
	_, err := GenerateSchema("not a struct")
	assert.Error(t, err)

	_, err = GenerateSchema(nil)
	assert.Error(t, err)
}
