package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// POST /v1/conversations/:conversation_id/files
func (h *Handler) AddFile(c echo.Context) error {
	var req domain.AddFileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	file, err := h.service.AddFile(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, file)
}

// GET /v1/conversations/:conversation_id/files
func (h *Handler) ListFiles(c echo.Context) error {
	files, err := h.service.ListFiles(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
}

// GET /v1/conversations/:conversation_id/canvas
func (h *Handler) GetCanvas(c echo.Context) error {
	canvas, err := h.service.GetCanvas(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, canvas)
}

// PUT /v1/conversations/:conversation_id/canvas
func (h *Handler) SaveCanvas(c echo.Context) error {
	var req domain.SaveCanvasRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	canvas, err := h.service.SaveCanvas(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, canvas)
}
