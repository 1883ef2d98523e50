package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// POST /v1/tool-configs
func (h *Handler) CreateToolConfig(c echo.Context) error {
	var req domain.ToolConfig
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	cfg, err := h.service.CreateToolConfig(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

// GET /v1/tool-configs
func (h *Handler) ListToolConfigs(c echo.Context) error {
	configs, err := h.service.ListToolConfigs(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tool_configs": configs})
}

// DELETE /v1/tool-configs/:tool_config_id
func (h *Handler) DeleteToolConfig(c echo.Context) error {
	if err := h.service.DeleteToolConfig(c.Request().Context(), c.Param("tool_config_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /v1/tool-schemas
func (h *Handler) CreateToolSchema(c echo.Context) error {
	req := domain.ToolSchema{Enabled: true}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	schema, err := h.service.CreateToolSchema(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, schema)
}

// GET /v1/tool-schemas?participant_id=
func (h *Handler) ListToolSchemas(c echo.Context) error {
	schemas, err := h.service.ListToolSchemas(c.Request().Context(), c.QueryParam("participant_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tool_schemas": schemas})
}

// DELETE /v1/tool-schemas/:tool_schema_id
func (h *Handler) DeleteToolSchema(c echo.Context) error {
	if err := h.service.DeleteToolSchema(c.Request().Context(), c.Param("tool_schema_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ExecuteTool calls a configured API directly.
// POST /v1/tools/execute
func (h *Handler) ExecuteTool(c echo.Context) error {
	var req domain.ExecuteToolRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.service.ExecuteTool(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
