package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/projects"
)

type ProjectsHandler struct {
	reader *projects.Reader
}

func NewProjectsHandler(reader *projects.Reader) *ProjectsHandler {
	return &ProjectsHandler{reader: reader}
}

// GetMany handles GET /projects?ids=a,b,c, accepting a mixed list of
// base-62 project ids and slugs.
func (h *ProjectsHandler) GetMany(c *gin.Context) {
	raw := c.Query("ids")
	if raw == "" {
		apperr.Respond(c, apperr.InvalidInputf("ids query parameter is required"))
		return
	}
	queries := strings.Split(raw, ",")
	for i, q := range queries {
		queries[i] = strings.TrimSpace(q)
	}

	result, err := h.reader.GetMany(c.Request.Context(), queries)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(200, result)
}
