package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/toolproxy"
	"github.com/xiaot623/gogo/roundtable/policy"
)

// ToolRunner resolves a participant's tools and dispatches calls through the
// policy gate and the tool proxy.
type ToolRunner struct {
	store   store.Store
	proxy   *toolproxy.Client
	policy  *policy.Engine
	metrics *metrics.Metrics
}

// NewToolRunner creates a ToolRunner. policy and m may be nil.
func NewToolRunner(st store.Store, proxy *toolproxy.Client, engine *policy.Engine, m *metrics.Metrics) *ToolRunner {
	return &ToolRunner{store: st, proxy: proxy, policy: engine, metrics: m}
}

// BoundTool is a schema with its resolved configuration.
type BoundTool struct {
	Schema *domain.ToolSchema
	Config *domain.ToolConfig
}

// Descriptors lists the enabled tools of a participant whose configuration exists.
func (r *ToolRunner) Descriptors(ctx context.Context, participantID string) ([]ToolDescriptor, error) {
	schemas, err := r.store.ListToolSchemas(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool schemas: %w", err)
	}
	var out []ToolDescriptor
	for _, s := range schemas {
		if !s.Enabled {
			continue
		}
		cfg, err := r.store.GetToolConfig(ctx, s.ToolConfigID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool config: %w", err)
		}
		if cfg == nil {
			continue
		}
		params := strings.TrimSpace(string(s.ParametersSchema))
		if params == "" {
			params = "{}"
		}
		out = append(out, ToolDescriptor{Name: s.ToolName, Description: s.Description, Parameters: params})
	}
	return out, nil
}

// Resolve finds the enabled tool named name for a participant.
func (r *ToolRunner) Resolve(ctx context.Context, participantID, name string) (*BoundTool, error) {
	schema, err := r.store.FindToolSchema(ctx, participantID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find tool schema: %w", err)
	}
	if schema == nil || !schema.Enabled {
		return nil, domain.NewNotFoundError("tool", name)
	}
	cfg, err := r.store.GetToolConfig(ctx, schema.ToolConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool config: %w", err)
	}
	if cfg == nil {
		return nil, domain.NewNotFoundError("tool config", schema.ToolConfigID)
	}
	return &BoundTool{Schema: schema, Config: cfg}, nil
}

// Execute checks the policy and forwards the call.
func (r *ToolRunner) Execute(ctx context.Context, conversationID, participantID string, tool *BoundTool, args json.RawMessage) (json.RawMessage, error) {
	if r.policy != nil {
		err := r.policy.Check(ctx, policy.ToolInput{
			ToolName:       tool.Schema.ToolName,
			ParticipantID:  participantID,
			ConversationID: conversationID,
			Method:         tool.Schema.HTTPMethod,
			EndpointPath:   tool.Schema.EndpointPath,
			Arguments:      args,
		})
		if err != nil {
			r.observe(err)
			return nil, err
		}
	}

	res, err := r.proxy.Execute(ctx, &toolproxy.Call{
		Config:       tool.Config,
		EndpointPath: tool.Schema.EndpointPath,
		Method:       tool.Schema.HTTPMethod,
		Parameters:   args,
	})
	r.observe(err)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (r *ToolRunner) observe(err error) {
	if r.metrics == nil {
		return
	}
	var blocked *policy.BlockedError
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.As(err, &blocked):
		outcome = metrics.OutcomeBlocked
	case domain.IsKind(err, domain.ErrorKindTimedOut):
		outcome = metrics.OutcomeTimeout
	default:
		outcome = metrics.OutcomeError
	}
	r.metrics.ToolCalls.WithLabelValues(outcome).Inc()
}
