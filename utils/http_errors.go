package utils

import (
	"github.com/gofiber/fiber/v2"
)

// StatusForError maps the error taxonomy onto HTTP status codes.
func StatusForError(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindValidation:
		return fiber.StatusUnprocessableEntity
	case KindConflict:
		return fiber.StatusConflict
	case KindDataIntegrity:
		return fiber.StatusFailedDependency
	case KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondError writes the standard failure envelope.
func RespondError(c *fiber.Ctx, err error, message string) error {
	return c.Status(StatusForError(err)).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
		"kind":    KindOf(err),
	})
}
