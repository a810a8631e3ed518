package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) session(c *gin.Context) (*sequence.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid session ID", err)
		return nil, false
	}

	session, err := s.lm.Sessions().Get(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return session, true
}

// POST /api/v1/sessions
func (s *Server) createSession(c *gin.Context) {
	session := s.lm.Sessions().Create()
	c.JSON(http.StatusCreated, session.Snapshot())
}

// GET /api/v1/sessions
func (s *Server) listSessions(c *gin.Context) {
	sessions := s.lm.Sessions().List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GET /api/v1/sessions/:id
func (s *Server) getSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// DELETE /api/v1/sessions/:id
func (s *Server) deleteSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid session ID", err)
		return
	}
	if err := s.lm.Sessions().Delete(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/v1/sessions/:id/device
func (s *Server) selectDevice(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req struct {
		IPAddress string `json:"ip_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	device, err := s.lm.Directory().FindDevice(c.Request.Context(), req.IPAddress)
	if err != nil {
		s.directoryError(c, err)
		return
	}

	snap, err := session.SelectDevice(device)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DELETE /api/v1/sessions/:id/device
func (s *Server) deselectDevice(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	snap, err := session.DeselectDevice()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/sessions/:id/actions
func (s *Server) appendAction(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var draft action.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "invalid action body", err)
		return
	}

	position, snap, err := session.AppendDraft(draft)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"position": position,
		"session":  snap,
	})
}

// DELETE /api/v1/sessions/:id/actions/:position
func (s *Server) removeAction(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		badRequest(c, "position must be an integer", err)
		return
	}

	snap, err := session.Remove(position)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DELETE /api/v1/sessions/:id/actions
func (s *Server) clearActions(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	snap, err := session.Clear()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PUT /api/v1/sessions/:id/logging
func (s *Server) updateLogging(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req struct {
		Enabled          *bool   `json:"enabled"`
		Filename         *string `json:"filename"`
		PollingIntervalS *int    `json:"polling_interval_s"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	enabled := session.Snapshot().Logging.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	snap, err := session.SetLogging(enabled, req.Filename, req.PollingIntervalS)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/sessions/:id/templates/:name
func (s *Server) applyTemplate(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	tmpl, err := s.lm.Templates().Load(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	snap, err := session.AppendAll(tmpl.Actions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"template": tmpl.Name,
		"appended": len(tmpl.Actions),
		"session":  snap,
	})
}

// POST /api/v1/sessions/:id/dispatch
func (s *Server) dispatchSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	handle, err := session.Dispatch(c.Request.Context(), s.lm.Dispatcher())
	if err != nil {
		s.logger.Warn("Dispatch request failed",
			zap.String("session_id", session.ID().String()),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"dispatch": handle,
		"session":  session.Snapshot(),
	})
}
