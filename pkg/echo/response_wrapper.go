package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response is the standard API response structure. Every endpoint replies
// with a single human-readable message.
type Response struct {
	Message string `json:"message"`
}

// ==================== SUCCESS RESPONSES ====================

// OK - 200
func OK(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, Response{Message: message})
}

// ==================== CLIENT ERROR RESPONSES ====================

// BadRequest - 400
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, Response{Message: message})
}

// NotFound - 404
func NotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, Response{Message: message})
}

// ==================== SERVER ERROR RESPONSES ====================

// InternalError - 500
func InternalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, Response{Message: message})
}
