package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/middleware"
)

type NotificationsHandler struct {
	store *db.Store
}

func NewNotificationsHandler(store *db.Store) *NotificationsHandler {
	return &NotificationsHandler{store: store}
}

const defaultNotificationLimit = 50

// List handles GET /notifications, returning the caller's own
// notifications newest first.
func (h *NotificationsHandler) List(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := h.store.GetNotificationsForUser(c.Request.Context(), userID, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(200, list)
}

// MarkRead handles POST /notifications/:id/read. A caller may only
// mark their own notification read.
func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid notification id"))
		return
	}
	userID := middleware.UserIDFromContext(c)
	n, err := h.store.GetNotification(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if n.UserID != userID {
		apperr.Respond(c, apperr.Unauthorizedf("not your notification"))
		return
	}
	if err := h.store.MarkNotificationRead(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(204)
}
