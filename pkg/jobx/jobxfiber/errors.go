package jobxfiber

import (
	"errors"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

var httpErrors = errx.NewRegistry("JOBX_HTTP")

var (
	ErrInvalidBody  = httpErrors.Register("INVALID_BODY", errx.TypeValidation, 400, "Request body is not valid")
	ErrInvalidQuery = httpErrors.Register("INVALID_QUERY", errx.TypeValidation, 400, "Query parameter is not valid")
)

// ErrorHandler converts handler errors to JSON responses. Install it as the
// fiber app's ErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.Get(fiber.HeaderXRequestID)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":      fe.Message,
			"code":       "FIBER_ERROR",
			"status":     fe.Code,
			"request_id": requestID,
		})
	}

	var e *errx.Error
	if !errors.As(err, &e) {
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": requestID,
		}).Errorf("Request error: %v", err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"type":       string(errx.TypeInternal),
			"code":       "INTERNAL_ERROR",
			"status":     fiber.StatusInternalServerError,
			"request_id": requestID,
		})
	}

	resp := e.ToHTTPResponse()
	entry := logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestID,
		"code":       e.Code,
	})
	if resp.StatusCode >= fiber.StatusInternalServerError {
		entry.Errorf("Request error: %v", err)
	} else {
		entry.Debugf("Request rejected: %v", err)
	}

	body := fiber.Map{
		"error":      resp.Message,
		"code":       resp.Code,
		"type":       resp.Type,
		"status":     resp.StatusCode,
		"request_id": requestID,
	}
	if len(resp.Details) > 0 {
		body["details"] = resp.Details
	}
	return c.Status(resp.StatusCode).JSON(body)
}
