package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/templates
func (s *Server) listTemplates(c *gin.Context) {
	list, err := s.lm.Templates().List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"templates": list,
		"count":     len(list),
	})
}

// GET /api/v1/templates/:name
func (s *Server) getTemplate(c *gin.Context) {
	tmpl, err := s.lm.Templates().Load(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}
