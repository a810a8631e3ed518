package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.lm.Directory().ListDevices(c.Request.Context())
	if err != nil {
		s.directoryError(c, err)
		return
	}

	if devices == nil {
		devices = []directory.DeviceSummary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) directoryError(c *gin.Context, err error) {
	if errors.Is(err, directory.ErrDeviceNotFound) {
		respondError(c, err)
		return
	}
	s.logger.Warn("Device directory unavailable", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusBadGateway, types.NewErrorResponse(CodeDirectoryFailed, "device directory unavailable", err.Error()))
}

type kindLimits struct {
	Type     action.Kind    `json:"type"`
	Bounds   []action.Bound `json:"bounds"`
	Defaults action.Action  `json:"defaults"`
}

// GET /api/v1/limits
func (s *Server) getLimits(c *gin.Context) {
	kinds := make([]kindLimits, 0, len(action.Kinds))
	for _, k := range action.Kinds {
		kinds = append(kinds, kindLimits{
			Type:     k,
			Bounds:   action.Limits(k),
			Defaults: action.Defaults(k),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": kinds,
		"logging": gin.H{
			"polling_interval_s": gin.H{
				"min": sequence.MinPollingIntervalS,
				"max": sequence.MaxPollingIntervalS,
			},
			"max_filename_length": s.lm.Config().Sequence.MaxFilenameLength,
		},
	})
}
