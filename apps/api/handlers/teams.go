package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/middleware"
	"github.com/labrinth-gg/labrinth/libs/go/teams"
)

type TeamsHandler struct {
	engine *teams.Engine
}

func NewTeamsHandler(engine *teams.Engine) *TeamsHandler {
	return &TeamsHandler{engine: engine}
}

type inviteRequestBody struct {
	InviteeID    int64   `json:"invitee_id" binding:"required"`
	Role         string  `json:"role" binding:"required"`
	ProjectPerms uint64  `json:"project_permissions"`
	OrgPerms     *uint64 `json:"organization_permissions"`
}

// Invite handles POST /teams/:id/members.
func (h *TeamsHandler) Invite(c *gin.Context) {
	teamID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid team id"))
		return
	}
	var body inviteRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}

	inviterID := middleware.UserIDFromContext(c)
	err = h.engine.Invite(c.Request.Context(), inviterID, teamID, body.InviteeID, body.Role, body.ProjectPerms, body.OrgPerms)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(204)
}

// Accept handles POST /teams/:id/join.
func (h *TeamsHandler) Accept(c *gin.Context) {
	teamID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid team id"))
		return
	}
	userID := middleware.UserIDFromContext(c)
	if err := h.engine.Accept(c.Request.Context(), teamID, userID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(204)
}

// Remove handles DELETE /teams/:id/members/:user_id, covering both a
// member removing themselves and an authorized member removing another.
func (h *TeamsHandler) Remove(c *gin.Context) {
	teamID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid team id"))
		return
	}
	targetUserID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid user id"))
		return
	}
	actorID := middleware.UserIDFromContext(c)
	if err := h.engine.Remove(c.Request.Context(), actorID, teamID, targetUserID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(204)
}

type transferOwnershipRequestBody struct {
	NewOwnerID int64 `json:"new_owner_id" binding:"required"`
}

// TransferOwnership handles POST /teams/:id/transfer.
func (h *TeamsHandler) TransferOwnership(c *gin.Context) {
	teamID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid team id"))
		return
	}
	var body transferOwnershipRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}
	actorID := middleware.UserIDFromContext(c)
	if err := h.engine.TransferOwnership(c.Request.Context(), actorID, teamID, body.NewOwnerID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(204)
}
