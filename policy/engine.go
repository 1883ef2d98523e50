// Package policy gates tool dispatch with an OPA/rego policy.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions a policy may return.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// module must declare package tool_policy with a decision rule and may define
// a reason rule.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine builds an engine from a policy file, or from DefaultPolicy when
// path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// ToolInput describes a tool call about to be dispatched.
type ToolInput struct {
	ToolName       string
	ParticipantID  string
	ConversationID string
	Method         string
	EndpointPath   string
	Arguments      json.RawMessage
}

func (in ToolInput) toMap() map[string]interface{} {
	var args interface{} = map[string]interface{}{}
	if len(in.Arguments) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(in.Arguments, &decoded); err == nil && decoded != nil {
			args = decoded
		}
	}
	return map[string]interface{}{
		"tool_name":       in.ToolName,
		"participant_id":  in.ParticipantID,
		"conversation_id": in.ConversationID,
		"method":          in.Method,
		"endpoint_path":   in.EndpointPath,
		"arguments":       args,
	}
}

// Evaluate checks the tool policy.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input ToolInput) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input.toMap()))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionBlock, "unexpected policy document", nil
	}
	reason, _ := doc["reason"].(string)
	switch decision, _ := doc["decision"].(string); decision {
	case "", DecisionAllow:
		return DecisionAllow, reason, nil
	case DecisionBlock:
		return DecisionBlock, reason, nil
	default:
		return DecisionBlock, fmt.Sprintf("unsupported decision %q", decision), nil
	}
}

// BlockedError is returned by Check when the policy blocks a call.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "blocked by policy: " + e.Reason
}

// Check returns a *BlockedError when the call is not allowed.
func (e *Engine) Check(ctx context.Context, input ToolInput) error {
	decision, reason, err := e.Evaluate(ctx, input)
	if err != nil {
		return err
	}
	if decision == DecisionAllow {
		return nil
	}
	if reason == "" {
		reason = "no reason given"
	}
	return &BlockedError{Reason: reason}
}

// DefaultPolicy allows every tool call except DELETE requests.
const DefaultPolicy = `
package tool_policy

default decision = "allow"

decision = "block" {
	upper(input.method) == "DELETE"
}

reason = "DELETE requests are not allowed for tools" {
	upper(input.method) == "DELETE"
}
`
