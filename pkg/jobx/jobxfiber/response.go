package jobxfiber

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Response is the envelope for every successful admin response.
type Response struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

func respond(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(Response{
		Code:      status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Path:      c.Path(),
	})
}

func ok(c *fiber.Ctx, data any, message string) error {
	return respond(c, fiber.StatusOK, data, message)
}
