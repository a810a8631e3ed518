package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenCellBench/internal/interfaces"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/KevinKickass/OpenCellBench/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) history(c *gin.Context) (interfaces.DispatchHistory, bool) {
	h := s.lm.History()
	if h == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse(CodeHistoryDisabled, "dispatch history is disabled", "set database.enabled to record dispatches"))
		return nil, false
	}
	return h, true
}

// GET /api/v1/dispatches?device_ip=&limit=
func (s *Server) listDispatches(c *gin.Context) {
	h, ok := s.history(c)
	if !ok {
		return
	}

	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer", err)
			return
		}
		limit = storage.ClampLimit(n)
	}

	records, err := h.ListDispatches(c.Request.Context(), c.Query("device_ip"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispatches": records,
		"count":      len(records),
	})
}

// GET /api/v1/dispatches/:id
func (s *Server) getDispatch(c *gin.Context) {
	h, ok := s.history(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid dispatch ID", err)
		return
	}

	rec, err := h.GetDispatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
