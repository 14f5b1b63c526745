package apperr

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Respond writes the error's mapped status and a {"error": message}
// body, so every handler can do one apperr.Respond(c, err) call instead
// of hand-picking HTTP codes.
func Respond(c *gin.Context, err error) {
	var ae *Error
	if errors.As(err, &ae) {
		c.JSON(ae.StatusCode(), gin.H{"error": ae.Message})
		return
	}
	c.JSON(500, gin.H{"error": "internal error"})
}
