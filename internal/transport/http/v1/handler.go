// Package v1 provides the REST handlers of the collaboration service.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the /v1 routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")

	g.GET("/participants", h.ListParticipants)

	// Conversations
	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:conversation_id", h.GetConversation)
	g.PATCH("/conversations/:conversation_id", h.UpdateConversation)
	g.GET("/conversations/:conversation_id/transcript", h.ExportTranscript)

	// Messages and the turn loop
	g.POST("/conversations/:conversation_id/messages", h.SendMessage)
	g.GET("/conversations/:conversation_id/messages", h.ListMessages)
	g.POST("/conversations/:conversation_id/stop", h.StopConversation)
	g.GET("/conversations/:conversation_id/state", h.GetLoopState)

	// Files and canvas
	g.POST("/conversations/:conversation_id/files", h.AddFile)
	g.GET("/conversations/:conversation_id/files", h.ListFiles)
	g.GET("/conversations/:conversation_id/canvas", h.GetCanvas)
	g.PUT("/conversations/:conversation_id/canvas", h.SaveCanvas)

	// Role proposals
	g.GET("/conversations/:conversation_id/proposals", h.ListProposals)
	g.POST("/proposals/:proposal_id/decide", h.DecideProposal)
	g.POST("/conversations/:conversation_id/roles/negotiate", h.NegotiateRoles)

	// Memories
	g.GET("/participants/:participant_id/memories", h.ListMemories)
	g.POST("/participants/:participant_id/memories", h.CreateMemory)
	g.POST("/participants/:participant_id/memories/import", h.ImportDocument)
	g.GET("/participants/:participant_id/memories/search", h.SearchMemories)

	// Tools
	g.POST("/tool-configs", h.CreateToolConfig)
	g.GET("/tool-configs", h.ListToolConfigs)
	g.DELETE("/tool-configs/:tool_config_id", h.DeleteToolConfig)
	g.POST("/tool-schemas", h.CreateToolSchema)
	g.GET("/tool-schemas", h.ListToolSchemas)
	g.DELETE("/tool-schemas/:tool_schema_id", h.DeleteToolSchema)
	g.POST("/tools/execute", h.ExecuteTool)

	// Folders
	g.POST("/folders", h.CreateFolder)
	g.GET("/folders", h.ListFolders)
	g.PATCH("/folders/:folder_id", h.RenameFolder)
	g.DELETE("/folders/:folder_id", h.DeleteFolder)

	g.GET("/analytics", h.Analytics)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// ListParticipants returns the configured roster.
// GET /v1/participants
func (h *Handler) ListParticipants(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"participants": h.service.Roster(),
	})
}

// Analytics reports usage across all conversations.
// GET /v1/analytics
func (h *Handler) Analytics(c echo.Context) error {
	report, err := h.service.Analytics(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(domain.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
