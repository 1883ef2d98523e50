package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// GET /v1/participants/:participant_id/memories?limit=
func (h *Handler) ListMemories(c echo.Context) error {
	memories, err := h.service.ListMemories(c.Request().Context(), c.Param("participant_id"), queryInt(c, "limit", 50))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"memories": memories})
}

// POST /v1/participants/:participant_id/memories
func (h *Handler) CreateMemory(c echo.Context) error {
	var req domain.CreateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	mem, err := h.service.CreateMemory(c.Request().Context(), c.Param("participant_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, mem)
}

// ImportDocument extracts memories from an uploaded document.
// POST /v1/participants/:participant_id/memories/import
func (h *Handler) ImportDocument(c echo.Context) error {
	var req domain.ImportDocumentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	records, err := h.service.ImportDocument(c.Request().Context(), c.Param("participant_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"memories": records, "count": len(records)})
}

// SearchMemories previews retrieval for a query.
// GET /v1/participants/:participant_id/memories/search?q=&k=
func (h *Handler) SearchMemories(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return badRequest(c, "q is required")
	}
	scored, err := h.service.SearchMemories(c.Request().Context(), c.Param("participant_id"), q, queryInt(c, "k", 0))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": scored})
}
