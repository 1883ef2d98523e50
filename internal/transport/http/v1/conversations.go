package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/service"
)

// CreateConversation creates a conversation.
// POST /v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	var req domain.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := h.service.CreateConversation(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// ListConversations lists conversations, pinned first.
// GET /v1/conversations?folder_id=&include_archived=true
func (h *Handler) ListConversations(c echo.Context) error {
	filter := store.ConversationFilter{
		FolderID:        c.QueryParam("folder_id"),
		IncludeArchived: c.QueryParam("include_archived") == "true",
	}
	convs, err := h.service.ListConversations(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": convs})
}

// GetConversation returns one conversation.
// GET /v1/conversations/:conversation_id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// UpdateConversation patches conversation metadata.
// PATCH /v1/conversations/:conversation_id
func (h *Handler) UpdateConversation(c echo.Context) error {
	var req domain.UpdateConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := h.service.UpdateConversation(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ExportTranscript renders the conversation.
// GET /v1/conversations/:conversation_id/transcript?format=markdown|html
func (h *Handler) ExportTranscript(c echo.Context) error {
	format := c.QueryParam("format")
	out, err := h.service.ExportTranscript(c.Request().Context(), c.Param("conversation_id"), format)
	if err != nil {
		return errorJSON(c, err)
	}
	if format == service.FormatHTML {
		return c.HTML(http.StatusOK, out)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=UTF-8", []byte(out))
}
