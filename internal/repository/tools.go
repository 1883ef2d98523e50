package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// CreateToolConfig stores an external API configuration.
func (s *SQLiteStore) CreateToolConfig(ctx context.Context, cfg *domain.ToolConfig) error {
	headers, err := encodeJSON(cfg.CommonHeaders)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_configs (tool_config_id, name, description, base_url, common_headers, auth_type, auth_token, auth_header_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, nullString(cfg.Description), cfg.BaseURL, headers, cfg.AuthType,
		nullString(cfg.AuthToken), nullString(cfg.AuthHeaderName))
	return err
}

// GetToolConfig retrieves a tool configuration by ID.
func (s *SQLiteStore) GetToolConfig(ctx context.Context, id string) (*domain.ToolConfig, error) {
	configs, err := s.queryToolConfigs(ctx, `WHERE tool_config_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

// ListToolConfigs lists all tool configurations.
func (s *SQLiteStore) ListToolConfigs(ctx context.Context) ([]domain.ToolConfig, error) {
	return s.queryToolConfigs(ctx, `ORDER BY name ASC`)
}

// DeleteToolConfig removes a configuration and the schemas bound to it.
func (s *SQLiteStore) DeleteToolConfig(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_schemas WHERE tool_config_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_configs WHERE tool_config_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) queryToolConfigs(ctx context.Context, where string, args ...interface{}) ([]domain.ToolConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_config_id, name, description, base_url, common_headers, auth_type, auth_token, auth_header_name
			FROM tool_configs `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ToolConfig
	for rows.Next() {
		var cfg domain.ToolConfig
		var description, headers, token, headerName sql.NullString
		if err := rows.Scan(&cfg.ID, &cfg.Name, &description, &cfg.BaseURL, &headers, &cfg.AuthType, &token, &headerName); err != nil {
			return nil, err
		}
		cfg.Description = description.String
		cfg.AuthToken = token.String
		cfg.AuthHeaderName = headerName.String
		if err := decodeJSON(headers, &cfg.CommonHeaders); err != nil {
			return nil, fmt.Errorf("failed to decode headers of %s: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

const toolSchemaColumns = `tool_schema_id, tool_name, participant_id, tool_config_id, description, endpoint_path, http_method, parameters_schema, response_schema, enabled`

// CreateToolSchema stores a participant-visible tool.
func (s *SQLiteStore) CreateToolSchema(ctx context.Context, ts *domain.ToolSchema) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_schemas (`+toolSchemaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID, ts.ToolName, ts.ParticipantID, ts.ToolConfigID, nullString(ts.Description), ts.EndpointPath,
		ts.HTTPMethod, nullStringBytes(ts.ParametersSchema), nullStringBytes(ts.ResponseSchema), boolInt(ts.Enabled))
	return err
}

// GetToolSchema retrieves a tool schema by ID.
func (s *SQLiteStore) GetToolSchema(ctx context.Context, id string) (*domain.ToolSchema, error) {
	schemas, err := s.queryToolSchemas(ctx, `WHERE tool_schema_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, nil
	}
	return &schemas[0], nil
}

// ListToolSchemas lists schemas of one participant, or all schemas when participantID is empty.
func (s *SQLiteStore) ListToolSchemas(ctx context.Context, participantID string) ([]domain.ToolSchema, error) {
	if participantID == "" {
		return s.queryToolSchemas(ctx, `ORDER BY participant_id ASC, tool_name ASC`)
	}
	return s.queryToolSchemas(ctx, `WHERE participant_id = ? ORDER BY tool_name ASC`, participantID)
}

// FindToolSchema finds an enabled schema by participant and tool name.
func (s *SQLiteStore) FindToolSchema(ctx context.Context, participantID, toolName string) (*domain.ToolSchema, error) {
	schemas, err := s.queryToolSchemas(ctx, `WHERE participant_id = ? AND tool_name = ? AND enabled = 1 LIMIT 1`, participantID, toolName)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, nil
	}
	return &schemas[0], nil
}

// DeleteToolSchema removes a tool schema.
func (s *SQLiteStore) DeleteToolSchema(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_schemas WHERE tool_schema_id = ?`, id)
	return err
}

func (s *SQLiteStore) queryToolSchemas(ctx context.Context, where string, args ...interface{}) ([]domain.ToolSchema, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolSchemaColumns+` FROM tool_schemas `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []domain.ToolSchema
	for rows.Next() {
		var ts domain.ToolSchema
		var description, params, response sql.NullString
		var enabled int
		if err := rows.Scan(&ts.ID, &ts.ToolName, &ts.ParticipantID, &ts.ToolConfigID, &description, &ts.EndpointPath,
			&ts.HTTPMethod, &params, &response, &enabled); err != nil {
			return nil, err
		}
		ts.Description = description.String
		if params.Valid {
			ts.ParametersSchema = json.RawMessage(params.String)
		}
		if response.Valid {
			ts.ResponseSchema = json.RawMessage(response.String)
		}
		ts.Enabled = enabled != 0
		schemas = append(schemas, ts)
	}
	return schemas, rows.Err()
}
