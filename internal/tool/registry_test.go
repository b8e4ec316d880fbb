package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/pkg/logger"
)

func decodePayload(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	payload := decodePayload(t, r.Execute(context.Background(), "no_such_tool", json.RawMessage(`{}`)))

	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "no_such_tool")
}

func TestExecuteConvertsHandlerErrorToPayload(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(Tool{
		Name:       "boom",
		Parameters: jsonschema.Definition{Type: jsonschema.Object},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	})

	payload := decodePayload(t, r.Execute(context.Background(), "boom", json.RawMessage(`{}`)))

	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "backend unavailable", payload["error"])
}

func TestExecuteMarshalsHandlerResult(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(Tool{
		Name:       "echo",
		Parameters: jsonschema.Definition{Type: jsonschema.Object},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]any{"success": true, "value": 42}, nil
		},
	})

	payload := decodePayload(t, r.Execute(context.Background(), "echo", json.RawMessage(`{}`)))

	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(42), payload["value"])
}

func TestRegistryOrderAndEmpty(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	assert.True(t, r.Empty())

	r.Register(Tool{Name: "a"})
	r.Register(Tool{Name: "b"})

	require.Len(t, r.Tools(), 2)
	assert.Equal(t, "a", r.Tools()[0].Name)
	assert.Equal(t, "b", r.Tools()[1].Name)
	assert.False(t, r.Empty())
}
