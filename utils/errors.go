package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seehafer/fda-guidance-navigator/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithConflict sends a 409 Conflict error
func RespondWithConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, "conflict", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithDomainError maps a service-layer error onto the HTTP surface.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		RespondWithBadRequest(c, err.Error(), nil)
	case models.IsNotFound(err):
		RespondWithNotFound(c, err.Error())
	case models.IsConflict(err):
		RespondWithConflict(c, err.Error())
	case models.ErrorKindOf(err) != "":
		RespondWithError(c, http.StatusBadGateway, "upstream_error", err.Error(), nil)
	default:
		RespondWithInternalError(c, "internal server error", nil)
	}
}
