// Package response writes the {success, data, error} JSON envelope used by every endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes data with status.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Success: true, Data: data})
}

// Fail writes msg with status and aborts the remaining handler chain.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Error: msg})
}

func OK(c *gin.Context, data interface{}) { Success(c, http.StatusOK, data) }
func Created(c *gin.Context, data interface{}) { Success(c, http.StatusCreated, data) }
func Accepted(c *gin.Context, data interface{}) { Success(c, http.StatusAccepted, data) }

// NoContent sends 204 with no body.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Validation failures.
func BadRequest(c *gin.Context, msg string) { Fail(c, http.StatusBadRequest, msg) }

// Identity and role failures.
func Unauthorized(c *gin.Context, msg string) { Fail(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string) { Fail(c, http.StatusForbidden, msg) }

// PaymentRequired reports a wallet balance below the requested budget.
func PaymentRequired(c *gin.Context, msg string) { Fail(c, http.StatusPaymentRequired, msg) }

func NotFound(c *gin.Context, msg string) { Fail(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string) { Fail(c, http.StatusConflict, msg) }

// Internal hides the cause; callers log it.
func Internal(c *gin.Context, msg string) { Fail(c, http.StatusInternalServerError, msg) }

// ServiceUnavailable reports an optional backend (S3, live updates) that is not configured.
func ServiceUnavailable(c *gin.Context, msg string) { Fail(c, http.StatusServiceUnavailable, msg) }
