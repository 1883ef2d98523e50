package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/orchestrator"
)

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
}

func (s *Service) CreateToolConfig(ctx context.Context, cfg domain.ToolConfig) (*domain.ToolConfig, error) {
	if strings.TrimSpace(cfg.Name) == "" || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, domain.NewValidationError("name and base_url are required")
	}
	switch cfg.AuthType {
	case "":
		cfg.AuthType = domain.AuthTypeNone
	case domain.AuthTypeNone, domain.AuthTypeBearer, domain.AuthTypeAPIKey:
	default:
		return nil, domain.NewValidationError("invalid auth_type %q", cfg.AuthType)
	}
	cfg.ID = domain.NewID("tcfg")
	if err := s.store.CreateToolConfig(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to create tool config: %w", err)
	}
	return &cfg, nil
}

func (s *Service) ListToolConfigs(ctx context.Context) ([]domain.ToolConfig, error) {
	configs, err := s.store.ListToolConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool configs: %w", err)
	}
	if configs == nil {
		configs = []domain.ToolConfig{}
	}
	return configs, nil
}

func (s *Service) DeleteToolConfig(ctx context.Context, id string) error {
	cfg, err := s.store.GetToolConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get tool config: %w", err)
	}
	if cfg == nil {
		return domain.NewNotFoundError("tool config", id)
	}
	if err := s.store.DeleteToolConfig(ctx, id); err != nil {
		return fmt.Errorf("failed to delete tool config: %w", err)
	}
	return nil
}

func (s *Service) CreateToolSchema(ctx context.Context, schema domain.ToolSchema) (*domain.ToolSchema, error) {
	if strings.TrimSpace(schema.ToolName) == "" {
		return nil, domain.NewValidationError("tool_name is required")
	}
	if err := s.requireParticipant(schema.ParticipantID); err != nil {
		return nil, err
	}
	cfg, err := s.store.GetToolConfig(ctx, schema.ToolConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool config: %w", err)
	}
	if cfg == nil {
		return nil, domain.NewNotFoundError("tool config", schema.ToolConfigID)
	}
	schema.HTTPMethod = strings.ToUpper(strings.TrimSpace(schema.HTTPMethod))
	if schema.HTTPMethod == "" {
		schema.HTTPMethod = http.MethodGet
	}
	if !allowedMethods[schema.HTTPMethod] {
		return nil, domain.NewValidationError("invalid http_method %q", schema.HTTPMethod)
	}
	if len(schema.ParametersSchema) > 0 && !json.Valid(schema.ParametersSchema) {
		return nil, domain.NewValidationError("parameters_schema must be JSON")
	}
	existing, err := s.store.FindToolSchema(ctx, schema.ParticipantID, schema.ToolName)
	if err != nil {
		return nil, fmt.Errorf("failed to find tool schema: %w", err)
	}
	if existing != nil {
		return nil, domain.NewConflictError("participant %s already has a tool named %s", schema.ParticipantID, schema.ToolName)
	}

	schema.ID = domain.NewID("tschema")
	if err := s.store.CreateToolSchema(ctx, &schema); err != nil {
		return nil, fmt.Errorf("failed to create tool schema: %w", err)
	}
	return &schema, nil
}

func (s *Service) ListToolSchemas(ctx context.Context, participantID string) ([]domain.ToolSchema, error) {
	schemas, err := s.store.ListToolSchemas(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool schemas: %w", err)
	}
	if schemas == nil {
		schemas = []domain.ToolSchema{}
	}
	return schemas, nil
}

func (s *Service) DeleteToolSchema(ctx context.Context, id string) error {
	schema, err := s.store.GetToolSchema(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get tool schema: %w", err)
	}
	if schema == nil {
		return domain.NewNotFoundError("tool schema", id)
	}
	return s.store.DeleteToolSchema(ctx, id)
}

// ExecuteTool calls a configured API directly, through the same policy gate
// participants go through. Failures are reported in the result.
func (s *Service) ExecuteTool(ctx context.Context, req domain.ExecuteToolRequest) (*domain.ToolResult, error) {
	cfg, err := s.store.GetToolConfig(ctx, req.ToolConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool config: %w", err)
	}
	if cfg == nil {
		return nil, domain.NewNotFoundError("tool config", req.ToolConfigID)
	}
	bound := &orchestrator.BoundTool{
		Schema: &domain.ToolSchema{
			ToolName:     cfg.Name,
			ToolConfigID: cfg.ID,
			EndpointPath: req.EndpointPath,
			HTTPMethod:   req.Method,
		},
		Config: cfg,
	}
	data, err := s.tools.Execute(ctx, "", "", bound, req.Parameters)
	if err != nil {
		return &domain.ToolResult{Error: err.Error()}, nil
	}
	return &domain.ToolResult{Data: data}, nil
}
