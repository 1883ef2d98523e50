package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// ListProposals lists role proposals, optionally by status.
// GET /v1/conversations/:conversation_id/proposals?status=PENDING
func (h *Handler) ListProposals(c echo.Context) error {
	status := domain.ProposalStatus(strings.ToUpper(c.QueryParam("status")))
	proposals, err := h.service.ListProposals(c.Request().Context(), c.Param("conversation_id"), status)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"proposals": proposals})
}

// DecideProposal approves or denies a pending proposal.
// POST /v1/proposals/:proposal_id/decide
func (h *Handler) DecideProposal(c echo.Context) error {
	var req domain.ProposalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	proposal, err := h.service.DecideProposal(c.Request().Context(), c.Param("proposal_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, proposal)
}

// NegotiateRoles asks the model to assign roles to the active participants.
// POST /v1/conversations/:conversation_id/roles/negotiate
func (h *Handler) NegotiateRoles(c echo.Context) error {
	var req domain.NegotiateRolesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	team, err := h.service.NegotiateRoles(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, team)
}
