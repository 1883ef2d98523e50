package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// SendMessage posts a human message and starts the turn loop.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	resp, err := h.service.SendMessage(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// ListMessages returns the transcript, oldest first.
// GET /v1/conversations/:conversation_id/messages?limit=
func (h *Handler) ListMessages(c echo.Context) error {
	messages, err := h.service.ListMessages(c.Request().Context(), c.Param("conversation_id"), queryInt(c, "limit", 0))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": messages})
}

// StopConversation halts the turn loop.
// POST /v1/conversations/:conversation_id/stop
func (h *Handler) StopConversation(c echo.Context) error {
	state, err := h.service.StopConversation(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"loop_state": state})
}

// GetLoopState reports the turn loop state.
// GET /v1/conversations/:conversation_id/state
func (h *Handler) GetLoopState(c echo.Context) error {
	state, err := h.service.LoopState(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"loop_state": state})
}
