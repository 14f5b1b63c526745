package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/middleware"
	"github.com/labrinth-gg/labrinth/libs/go/sharedinstance"
)

type SharedInstanceHandler struct {
	service *sharedinstance.Service
}

func NewSharedInstanceHandler(service *sharedinstance.Service) *SharedInstanceHandler {
	return &SharedInstanceHandler{service: service}
}

type createSharedInstanceBody struct {
	ProfileID string                      `json:"profile_id" binding:"required"`
	Profile   sharedinstance.LocalProfile `json:"profile"`
}

// Create handles POST /shared-instances.
func (h *SharedInstanceHandler) Create(c *gin.Context) {
	var body createSharedInstanceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}
	ownerID := middleware.UserIDFromContext(c)
	instance, err := h.service.CreateFromLocalProfile(c.Request.Context(), ownerID, body.ProfileID, body.Profile)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(201, instance)
}

// InboundSync handles POST /shared-instances/:id/sync/inbound: the
// caller's local profile is compared against the shared instance and
// the plan needed to bring the client up to date is returned.
func (h *SharedInstanceHandler) InboundSync(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid shared instance id"))
		return
	}
	var local sharedinstance.LocalProfile
	if err := c.ShouldBindJSON(&local); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}
	userID := middleware.UserIDFromContext(c)
	plan, err := h.service.InboundSync(c.Request.Context(), id, userID, local)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(200, plan)
}

// OutboundSync handles POST /shared-instances/:id/sync/outbound: the
// caller's local profile becomes the new state of the shared instance.
func (h *SharedInstanceHandler) OutboundSync(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid shared instance id"))
		return
	}
	var local sharedinstance.LocalProfile
	if err := c.ShouldBindJSON(&local); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}
	userID := middleware.UserIDFromContext(c)
	instance, err := h.service.OutboundSync(c.Request.Context(), id, userID, local)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(200, instance)
}
