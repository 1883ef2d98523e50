package domain

import "encoding/json"

// ToolConfig describes how to reach an external HTTP API.
type ToolConfig struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	BaseURL        string            `json:"base_url"`
	CommonHeaders  map[string]string `json:"common_headers,omitempty"`
	AuthType       AuthType          `json:"auth_type"`
	AuthToken      string            `json:"auth_token,omitempty"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
}

// ToolSchema is a tool visible to one participant, bound to a ToolConfig.
type ToolSchema struct {
	ID               string          `json:"id"`
	ToolName         string          `json:"tool_name"`
	ParticipantID    string          `json:"participant_id"`
	ToolConfigID     string          `json:"tool_config_id"`
	Description      string          `json:"description,omitempty"`
	EndpointPath     string          `json:"endpoint_path"`
	HTTPMethod       string          `json:"http_method"`
	ParametersSchema json.RawMessage `json:"parameters_schema,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
	Enabled          bool            `json:"enabled"`
}

// ToolCall is one call requested by a participant in a tool sub-turn.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallEnvelope is the JSON shape a participant answers with to use tools.
type ToolCallEnvelope struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}
