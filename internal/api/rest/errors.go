package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/KevinKickass/OpenCellBench/internal/dispatch"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/KevinKickass/OpenCellBench/internal/templates"
	"github.com/KevinKickass/OpenCellBench/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidation       = "VALIDATION_FAILED"
	CodeEmptySequence    = "EMPTY_SEQUENCE"
	CodeConflict         = "CONFLICT"
	CodeNotFound         = "NOT_FOUND"
	CodeDispatchFailed   = "DISPATCH_FAILED"
	CodeDispatchTimeout  = "DISPATCH_TIMEOUT"
	CodeControllerReject = "CONTROLLER_REJECTED"
	CodeDirectoryFailed  = "DIRECTORY_UNAVAILABLE"
	CodeHistoryDisabled  = "HISTORY_DISABLED"
	CodeInternal         = "INTERNAL"
)

// respondError maps a domain error onto a status code and the common error
// envelope.
func respondError(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	c.JSON(status, body)
}

func classify(err error) (int, types.ErrorResponse) {
	var (
		verr     *action.ValidationError
		conflict *sequence.ConflictError
		notFound *sequence.NotFoundError
		derr     *dispatch.DispatchError
		rejected *dispatch.ControllerRejected
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity,
			types.NewErrorResponse(CodeValidation, verr.Error(), verr)

	case errors.Is(err, sequence.ErrEmptySequence):
		return http.StatusUnprocessableEntity,
			types.NewErrorResponse(CodeEmptySequence, err.Error(), nil)

	case errors.As(err, &conflict):
		return http.StatusConflict,
			types.NewErrorResponse(CodeConflict, err.Error(), gin.H{"operation": conflict.Op})

	case errors.As(err, &notFound):
		return http.StatusNotFound,
			types.NewErrorResponse(CodeNotFound, err.Error(), gin.H{"resource": notFound.Resource})

	case errors.Is(err, templates.ErrTemplateNotFound),
		errors.Is(err, directory.ErrDeviceNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound,
			types.NewErrorResponse(CodeNotFound, err.Error(), nil)

	case errors.As(err, &rejected):
		return http.StatusBadGateway,
			types.NewErrorResponse(CodeControllerReject, "device controller rejected the sequence", gin.H{
				"status_code": rejected.StatusCode,
				"body":        rejected.Detail,
			})

	case errors.As(err, &derr):
		if derr.Timeout {
			return http.StatusGatewayTimeout,
				types.NewErrorResponse(CodeDispatchTimeout, err.Error(), gin.H{"device_ip": derr.DeviceIP})
		}
		return http.StatusBadGateway,
			types.NewErrorResponse(CodeDispatchFailed, err.Error(), gin.H{"device_ip": derr.DeviceIP})

	default:
		return http.StatusInternalServerError,
			types.NewErrorResponse(CodeInternal, "internal error", err.Error())
	}
}

func badRequest(c *gin.Context, message string, err error) {
	var details any
	if err != nil {
		details = err.Error()
		_ = c.Error(err)
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(CodeBadRequest, message, details))
}
