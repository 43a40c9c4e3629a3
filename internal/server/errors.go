package server

import (
	"errors"
	"net/http"

	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"github.com/gaiaguardians/walking/pkg/db"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Requested int64  `json:"requested,omitempty"`
	Available int64  `json:"available,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var insufficient *energydomain.InsufficientEnergyError
	if errors.As(err, &insufficient) {
		return http.StatusConflict, errorPayload{
			Type:      "insufficient_energy",
			Message:   insufficient.Error(),
			Requested: insufficient.Requested,
			Available: insufficient.Available,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, stepdomain.ErrInvalidGuardian),
		errors.Is(err, stepdomain.ErrNegativeStepCount),
		errors.Is(err, stepdomain.ErrStepCountTooLarge),
		errors.Is(err, stepdomain.ErrInvalidRange),
		errors.Is(err, stepdomain.ErrRangeTooLarge),
		errors.Is(err, energydomain.ErrInvalidGuardian),
		errors.Is(err, energydomain.ErrNegativeEnergy),
		errors.Is(err, energydomain.ErrZeroAmount),
		errors.Is(err, energydomain.ErrInvalidSource):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server_error", payload.Type
	}
	return "client_error", payload.Type
}
