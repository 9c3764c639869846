package utils

import (
	"errors"
	"time"

	"github.com/MWest2020/openregister/internal/types"
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":    fiber.StatusNotFound,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
	})
}

// DomainErrorResponse maps the service error taxonomy to a transport
// status: NotFound 404, AmbiguousResult 400, lock conflicts 423, state
// conflicts 409, validation failures 400, anything else 500.
func DomainErrorResponse(c *fiber.Ctx, err error, errorType string) error {
	var validation *types.ValidationError
	switch {
	case errors.Is(err, types.ErrNotFound):
		return NotFoundResponse(c, err.Error())
	case errors.Is(err, types.ErrAmbiguous):
		return ErrorResponse(c, err.Error(), fiber.StatusBadRequest, errorType)
	case errors.Is(err, types.ErrLocked):
		return ErrorResponse(c, err.Error(), fiber.StatusLocked, errorType)
	case errors.Is(err, types.ErrConflict):
		return ErrorResponse(c, err.Error(), fiber.StatusConflict, errorType)
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":    fiber.StatusBadRequest,
			"message":   "validation failed",
			"ok":        false,
			"errors":    validation.Errors,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
			"type":      errorType,
		})
	default:
		return ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
	}
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
}
