package api

import (
	"errors"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const msgNotFound = "Letter not found"

// errorHandler maps errors returned by handlers onto status codes. Internal
// errors only carry detail when production is false.
func errorHandler(production bool, log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			ve *models.ValidationError
			fe *fiber.Error
		)

		switch {
		case errors.As(err, &ve):
			return jsonError(c, fiber.StatusBadRequest, ve.Error())
		case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidArgument):
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrNotFound):
			return jsonError(c, fiber.StatusNotFound, msgNotFound)
		case errors.As(err, &fe):
			return jsonError(c, fe.Code, fe.Message)
		}

		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))

		body := Envelope{Success: false, Message: "Internal Server Error"}
		if !production {
			body.Error = err.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}
}
