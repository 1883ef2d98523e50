package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type folderRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// POST /v1/folders
func (h *Handler) CreateFolder(c echo.Context) error {
	var req folderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	f, err := h.service.CreateFolder(c.Request().Context(), req.Name, req.Color)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, f)
}

// GET /v1/folders
func (h *Handler) ListFolders(c echo.Context) error {
	folders, err := h.service.ListFolders(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"folders": folders})
}

// PATCH /v1/folders/:folder_id
func (h *Handler) RenameFolder(c echo.Context) error {
	var req folderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	f, err := h.service.RenameFolder(c.Request().Context(), c.Param("folder_id"), req.Name)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// DELETE /v1/folders/:folder_id
func (h *Handler) DeleteFolder(c echo.Context) error {
	if err := h.service.DeleteFolder(c.Request().Context(), c.Param("folder_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
