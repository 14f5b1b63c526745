package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/billing"
)

// BillingHandler exposes the account-facing parts of the billing
// engine; the webhook intake itself lives in the separate
// webhook-receiver daemon, not here.
type BillingHandler struct {
	engine *billing.Engine
}

func NewBillingHandler(engine *billing.Engine) *BillingHandler {
	return &BillingHandler{engine: engine}
}

type refundRequestBody struct {
	Kind        string `json:"kind" binding:"required"`
	Amount      int64  `json:"amount"`
	Unprovision bool   `json:"unprovision"`
}

// Refund handles POST /charges/:id/refund.
func (h *BillingHandler) Refund(c *gin.Context) {
	chargeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid charge id"))
		return
	}

	var body refundRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.InvalidInputf("invalid request body: %v", err))
		return
	}

	req := billing.RefundRequest{
		Kind:        billing.RefundAmountKind(body.Kind),
		Amount:      body.Amount,
		Unprovision: body.Unprovision,
	}

	charge, err := h.engine.Refund(c.Request.Context(), chargeID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(200, charge)
}
