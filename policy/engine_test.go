package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	decision, _, err := engine.Evaluate(ctx, ToolInput{ToolName: "weather", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)

	decision, reason, err := engine.Evaluate(ctx, ToolInput{ToolName: "files", Method: "delete"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
	assert.Equal(t, "DELETE requests are not allowed for tools", reason)

	err = engine.Check(ctx, ToolInput{ToolName: "files", Method: "DELETE"})
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, "blocked by policy: DELETE requests are not allowed for tools", err.Error())
}

func TestCustomPolicyUsesArguments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte(`
package tool_policy

default decision = "allow"

decision = "block" {
	input.participant_id == "gemini-pro"
	input.arguments.amount > 100
}
`), 0o600))

	engine, err := LoadEngine(ctx, path)
	require.NoError(t, err)

	assert.NoError(t, engine.Check(ctx, ToolInput{ParticipantID: "gemini-pro", Arguments: []byte(`{"amount":5}`)}))
	assert.NoError(t, engine.Check(ctx, ToolInput{ParticipantID: "gpt-4", Arguments: []byte(`{"amount":500}`)}))

	err = engine.Check(ctx, ToolInput{ParticipantID: "gemini-pro", Arguments: []byte(`{"amount":500}`)})
	assert.EqualError(t, err, "blocked by policy: no reason given")
}

func TestInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package tool_policy\n\ndecision = {")
	assert.Error(t, err)

	_, err = LoadEngine(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
