package api

import "github.com/gofiber/fiber/v2"

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`

	// Error carries failure detail outside production.
	Error string `json:"error,omitempty"`
}

func jsonSuccess(c *fiber.Ctx, status int, message string, data any) error {
	if message == "" {
		message = "OK"
	}
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data})
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Envelope{Success: false, Message: message})
}
